package stylist

import (
	"errors"
	"fmt"
	"time"

	"ootdStylist/internal/storage"
)

// ErrInvalidTransition is returned when an action is not allowed from the
// session's current screen.
var ErrInvalidTransition = errors.New("stylist: invalid transition")

// ErrShare wraps a failed snapshot upload.
var ErrShare = errors.New("stylist: share upload failed")

// ErrStaleRun marks the completion of a run that no longer owns the session.
var ErrStaleRun = errors.New("stylist: run superseded")

// NewSession returns the initial home state.
func NewSession() storage.Session {
	return storage.Session{Screen: storage.ScreenHome}
}

// BeginUpload moves a home session to loading for a new photo at time at.
func BeginUpload(s storage.Session, runID string, at time.Time) (storage.Session, error) {
	s = Normalize(s)
	if s.Screen != storage.ScreenHome {
		return s, fmt.Errorf("%w: upload from %s", ErrInvalidTransition, s.Screen)
	}
	return storage.Session{
		ID:           s.ID,
		Screen:       storage.ScreenLoading,
		RunID:        runID,
		LoadingSince: at,
	}, nil
}

// BeginRerun moves a result session back to loading, keeping the user photo.
func BeginRerun(s storage.Session, runID string, at time.Time) (storage.Session, error) {
	s = Normalize(s)
	if s.Screen != storage.ScreenResult {
		return s, fmt.Errorf("%w: rerun from %s", ErrInvalidTransition, s.Screen)
	}
	return storage.Session{
		ID:           s.ID,
		Screen:       storage.ScreenLoading,
		UserImage:    s.UserImage,
		RunID:        runID,
		LoadingSince: at,
	}, nil
}

// AttachUserImage records the prepared photo while runID is still loading.
func AttachUserImage(s storage.Session, runID, userImage string) (storage.Session, error) {
	if err := owns(s, runID); err != nil {
		return s, err
	}
	s.UserImage = userImage
	return s, nil
}

// Complete moves the run's session to result.
func Complete(s storage.Session, runID, userImage string, analysis storage.Analysis, images []string) (storage.Session, error) {
	if err := owns(s, runID); err != nil {
		return s, err
	}
	return storage.Session{
		ID:              s.ID,
		Screen:          storage.ScreenResult,
		UserImage:       userImage,
		Analysis:        &analysis,
		GeneratedImages: append([]string(nil), images...),
		RunID:           runID,
	}, nil
}

// Fail returns the run's session to home with message and no result data.
func Fail(s storage.Session, runID, message string) (storage.Session, error) {
	if err := owns(s, runID); err != nil {
		return s, err
	}
	return storage.Session{
		ID:     s.ID,
		Screen: storage.ScreenHome,
		Error:  message,
	}, nil
}

// Abandon returns a loading session whose run is gone to home with message.
// Other sessions are returned unchanged.
func Abandon(s storage.Session, message string) storage.Session {
	if s.Screen != storage.ScreenLoading {
		return s
	}
	return storage.Session{
		ID:     s.ID,
		Screen: storage.ScreenHome,
		Error:  message,
	}
}

// Reset returns any session to the initial home state.
func Reset(s storage.Session) storage.Session {
	out := NewSession()
	out.ID = s.ID
	return out
}

// Normalize sends a result session with missing data back to home.
func Normalize(s storage.Session) storage.Session {
	if s.Screen == storage.ScreenResult && (s.Analysis == nil || s.GeneratedImages == nil || s.UserImage == "") {
		return Reset(s)
	}
	return s
}

func owns(s storage.Session, runID string) error {
	if s.Screen != storage.ScreenLoading || s.RunID == "" || s.RunID != runID {
		return ErrStaleRun
	}
	return nil
}
