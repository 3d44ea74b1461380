package stylist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ootdStylist/internal/events"
	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/locales"
	"ootdStylist/internal/media"
	"ootdStylist/internal/snapshot"
	"ootdStylist/internal/storage"
	"ootdStylist/internal/vision"
	"ootdStylist/pkg/logger"
)

// RerunMIME is the type assumed for the stored photo when a run is repeated.
// The stored photo keeps the MIME type of the original upload, so this is only
// accurate for JPEG uploads.
const RerunMIME = "image/jpeg"

// ImagePreparer bounds and re-encodes an uploaded photo.
type ImagePreparer interface {
	Prepare(data []byte, mimeType string) (imageprep.Prepared, error)
}

// Options wires an Orchestrator.
type Options struct {
	Store     storage.Store
	Preparer  ImagePreparer
	Analyzer  vision.Analyzer
	Generator vision.ImageGenerator
	Events    *events.Broker
	Uploader  media.Uploader
	Locale    string
	// Timeout bounds a single run. Zero leaves runs unbounded.
	Timeout    time.Duration
	PixelRatio int
	// Fonts draw the result card. Nil uses the bundled Go fonts.
	Fonts *snapshot.Fonts
	// OrphanAfter is how long a loading session whose run is unknown to this
	// process is left alone before it is sent home. Zero derives it from
	// Timeout.
	OrphanAfter time.Duration
}

// defaultOrphanAfter applies when neither OrphanAfter nor Timeout is set.
const defaultOrphanAfter = 15 * time.Minute

// Orchestrator drives sessions through home, loading and result.
type Orchestrator struct {
	store       storage.Store
	preparer    ImagePreparer
	analyzer    vision.Analyzer
	generator   vision.ImageGenerator
	events      *events.Broker
	uploader    media.Uploader
	messages    *locales.Messages
	timeout     time.Duration
	orphanAfter time.Duration
	pixelRatio  int
	fonts       *snapshot.Fonts

	newRunID func() string
	now      func() time.Time
	wg       sync.WaitGroup

	mu   sync.Mutex
	runs map[string]struct{}
}

// New constructs an Orchestrator. A nil store, preparer, broker or uploader is
// replaced by its in-process default.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:       opts.Store,
		preparer:    opts.Preparer,
		analyzer:    opts.Analyzer,
		generator:   opts.Generator,
		events:      opts.Events,
		uploader:    opts.Uploader,
		messages:    locales.Get(opts.Locale),
		timeout:     opts.Timeout,
		orphanAfter: opts.OrphanAfter,
		pixelRatio:  opts.PixelRatio,
		fonts:       opts.Fonts,
		newRunID:    uuid.NewString,
		now:         time.Now,
		runs:        make(map[string]struct{}),
	}
	if o.store == nil {
		o.store = storage.NewInMemoryStore()
	}
	if o.preparer == nil {
		o.preparer = imageprep.New(0, 0, 0)
	}
	if o.uploader == nil {
		o.uploader = media.Disabled()
	}
	if o.events == nil {
		o.events = events.NewBroker()
	}
	if o.pixelRatio < 1 {
		o.pixelRatio = snapshot.DefaultPixelRatio
	}
	if o.orphanAfter <= 0 {
		o.orphanAfter = defaultOrphanAfter
		if o.timeout > 0 {
			o.orphanAfter = o.timeout + time.Minute
		}
	}
	return o
}

// Messages returns the locale used for user-facing strings.
func (o *Orchestrator) Messages() *locales.Messages {
	return o.messages
}

// Style runs the analysis and then renders every suggested outfit.
func Style(ctx context.Context, analyzer vision.Analyzer, generator vision.ImageGenerator, img imageprep.EncodedImage) (storage.Analysis, []string, error) {
	if analyzer == nil {
		return storage.Analysis{}, nil, fmt.Errorf("%w: %w", vision.ErrAnalysis, vision.ErrMissingCredentials)
	}
	analysis, err := analyzer.Analyze(ctx, img)
	if err != nil {
		return storage.Analysis{}, nil, err
	}
	images, err := vision.GenerateAll(ctx, generator, analysis.ImageGenerationPrompts)
	if err != nil {
		return storage.Analysis{}, nil, err
	}
	return analysis, images, nil
}

// Create starts a new session on the home screen.
func (o *Orchestrator) Create(ctx context.Context) (storage.Session, error) {
	s, err := o.store.CreateSession(ctx, NewSession())
	if err != nil {
		return storage.Session{}, fmt.Errorf("stylist: create session: %w", err)
	}
	o.publish(s)
	return s, nil
}

// Get loads a session and persists the home fallback for a result without
// data or a loading session whose run is gone.
func (o *Orchestrator) Get(ctx context.Context, id string) (storage.Session, error) {
	s, err := o.store.GetSession(ctx, id)
	if err != nil {
		return storage.Session{}, err
	}
	if o.repair(s).Screen == s.Screen {
		return s, nil
	}

	log := logger.WithFields(logrus.Fields{"session": id, "run": s.RunID})
	if s.Screen == storage.ScreenLoading {
		log.Warnf("run no longer active, returning to home")
	} else {
		log.Warnf("result without data, returning to home")
	}
	s, err = o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return o.repair(cur), nil
	})
	if err != nil {
		return storage.Session{}, err
	}
	o.publish(s)
	return s, nil
}

func (o *Orchestrator) repair(s storage.Session) storage.Session {
	s = Normalize(s)
	if o.orphaned(s) {
		s = Abandon(s, o.messages.ErrorMessage(string(KindUnknown)))
	}
	return s
}

// orphaned reports whether s is loading for a run this process is not
// executing and has been loading for longer than orphanAfter.
func (o *Orchestrator) orphaned(s storage.Session) bool {
	if s.Screen != storage.ScreenLoading || o.running(s.RunID) {
		return false
	}
	return s.LoadingSince.IsZero() || o.now().Sub(s.LoadingSince) >= o.orphanAfter
}

// View loads a session and decorates it for display.
func (o *Orchestrator) View(ctx context.Context, id string) (View, error) {
	s, err := o.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return o.ViewOf(s), nil
}

// Upload runs the full chain for a new photo and returns the settled session.
func (o *Orchestrator) Upload(ctx context.Context, id string, data []byte, mimeType string) (storage.Session, error) {
	_, done, err := o.startUpload(ctx, id, data, mimeType)
	if err != nil {
		return storage.Session{}, err
	}
	return await(ctx, done)
}

// UploadAsync starts the chain for a new photo and returns the loading session.
func (o *Orchestrator) UploadAsync(ctx context.Context, id string, data []byte, mimeType string) (storage.Session, error) {
	s, _, err := o.startUpload(ctx, id, data, mimeType)
	return s, err
}

// Rerun repeats analysis and generation on the stored photo and returns the
// settled session.
func (o *Orchestrator) Rerun(ctx context.Context, id string) (storage.Session, error) {
	_, done, err := o.startRerun(ctx, id)
	if err != nil {
		return storage.Session{}, err
	}
	return await(ctx, done)
}

// RerunAsync starts a rerun and returns the loading session.
func (o *Orchestrator) RerunAsync(ctx context.Context, id string) (storage.Session, error) {
	s, _, err := o.startRerun(ctx, id)
	return s, err
}

// Reset returns the session to the initial home state. A run in flight keeps
// going but its outcome is discarded.
func (o *Orchestrator) Reset(ctx context.Context, id string) (storage.Session, error) {
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return Reset(cur), nil
	})
	if err != nil {
		return storage.Session{}, err
	}
	o.publish(s)
	return s, nil
}

// Delete removes the session. A run in flight keeps going but its outcome is
// discarded.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"session": id}).Infof("session deleted")
	o.publish(storage.Session{ID: id})
	return nil
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Snapshot renders the session's result card.
func (o *Orchestrator) Snapshot(ctx context.Context, id string) ([]byte, error) {
	s, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	labels := o.messages.Result
	return snapshot.Render(s, snapshot.Options{
		PixelRatio: o.pixelRatio,
		Fonts:      o.fonts,
		Labels: snapshot.Labels{
			Heading:     labels.Heading,
			Feedback:    labels.Feedback,
			Suggestions: labels.Suggestions,
			Alternative: labels.Alternative,
			Generated:   labels.Generated,
		},
	})
}

// SharePayload is what a client hands to its share sheet.
type SharePayload struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Share uploads the result card and returns the share payload.
func (o *Orchestrator) Share(ctx context.Context, id string) (SharePayload, error) {
	png, err := o.Snapshot(ctx, id)
	if err != nil {
		return SharePayload{}, err
	}
	res, err := o.uploader.Upload(ctx, media.UploadInput{
		Filename:    snapshot.Filename,
		ContentType: "image/png",
		Body:        bytes.NewReader(png),
		Size:        int64(len(png)),
	})
	if err != nil {
		return SharePayload{}, fmt.Errorf("%w: %w", ErrShare, err)
	}
	return SharePayload{
		Title:    o.messages.Share.Title,
		Text:     o.messages.Share.Text,
		URL:      res.URL,
		Filename: snapshot.Filename,
	}, nil
}

// runInput produces the photo shown on the result screen and the payload sent
// to the analysis model.
type runInput func() (userImage string, img imageprep.EncodedImage, err error)

func (o *Orchestrator) startUpload(ctx context.Context, id string, data []byte, mimeType string) (storage.Session, <-chan storage.Session, error) {
	runID := o.newRunID()
	o.track(runID)
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return BeginUpload(cur, runID, o.now())
	})
	if err != nil {
		o.untrack(runID)
		return storage.Session{}, nil, err
	}
	o.publish(s)

	input := func() (string, imageprep.EncodedImage, error) {
		prepared, err := o.preparer.Prepare(data, mimeType)
		if err != nil {
			return "", imageprep.EncodedImage{}, err
		}
		img := prepared.Encode()
		return img.DataURI(), img, nil
	}
	return s, o.launch(ctx, id, runID, input), nil
}

func (o *Orchestrator) startRerun(ctx context.Context, id string) (storage.Session, <-chan storage.Session, error) {
	runID := o.newRunID()
	o.track(runID)
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return BeginRerun(cur, runID, o.now())
	})
	if err != nil {
		o.untrack(runID)
		return storage.Session{}, nil, err
	}
	o.publish(s)

	userImage := s.UserImage
	input := func() (string, imageprep.EncodedImage, error) {
		stored, err := imageprep.ParseDataURI(userImage)
		if err != nil {
			return "", imageprep.EncodedImage{}, fmt.Errorf("%w: stored photo: %w", imageprep.ErrDecode, err)
		}
		return userImage, imageprep.EncodedImage{Base64: stored.Base64, MIME: RerunMIME}, nil
	}
	return s, o.launch(ctx, id, runID, input), nil
}

// launch runs input and the model calls in the background. The run outlives
// the caller's context. A session still loading for the run once it returns
// is sent home.
func (o *Orchestrator) launch(ctx context.Context, id, runID string, input runInput) <-chan storage.Session {
	done := make(chan storage.Session, 1)
	base := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		runCtx := base
		if o.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(base, o.timeout)
			defer cancel()
		}
		logger.Debugf("run %s started for session %s", runID, id)
		s := o.run(base, runCtx, id, runID, input)
		o.untrack(runID)
		if s.Screen == storage.ScreenLoading && s.RunID == runID {
			s = o.abandon(base, id, runID)
		}
		done <- s
	}()
	return done
}

func (o *Orchestrator) run(base, runCtx context.Context, id, runID string, input runInput) storage.Session {
	log := logger.WithFields(logrus.Fields{"session": id, "run": runID})
	started := o.now()

	userImage, img, err := input()
	if err != nil {
		return o.fail(base, id, runID, err)
	}
	if _, err := o.store.UpdateSession(base, id, func(cur storage.Session) (storage.Session, error) {
		return AttachUserImage(cur, runID, userImage)
	}); err != nil {
		return o.settle(base, id, runID, err, o.messages.ErrorMessage(string(KindUnknown)))
	}

	analysis, images, err := Style(runCtx, o.analyzer, o.generator, img)
	if err != nil {
		return o.fail(base, id, runID, err)
	}

	s, err := o.store.UpdateSession(base, id, func(cur storage.Session) (storage.Session, error) {
		return Complete(cur, runID, userImage, analysis, images)
	})
	if err != nil {
		return o.settle(base, id, runID, err, o.messages.ErrorMessage(string(KindUnknown)))
	}
	log.WithField("rating", analysis.Rating).Infof("run finished in %s", o.now().Sub(started).Round(time.Millisecond))
	o.publish(s)
	return s
}

func (o *Orchestrator) fail(ctx context.Context, id, runID string, cause error) storage.Session {
	kind := Classify(cause)
	logger.WithFields(logrus.Fields{"session": id, "run": runID, "kind": kind}).Warnf("run failed: %v", cause)

	message := o.messages.ErrorMessage(string(kind))
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return Fail(cur, runID, message)
	})
	if err != nil {
		return o.settle(ctx, id, runID, err, message)
	}
	o.publish(s)
	return s
}

// settle handles a run whose write was refused. A superseded run leaves the
// session alone; any other failure retries the fall back to home once.
func (o *Orchestrator) settle(ctx context.Context, id, runID string, cause error, message string) storage.Session {
	log := logger.WithFields(logrus.Fields{"session": id, "run": runID})
	switch {
	case errors.Is(cause, ErrStaleRun):
		log.Infof("discarding outcome of superseded run")
		return o.current(ctx, id)
	case errors.Is(cause, storage.ErrNotFound):
		log.Infof("session deleted during run")
		return storage.Session{ID: id}
	}

	log.Errorf("persist run outcome: %v", cause)
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		return Fail(cur, runID, message)
	})
	if err != nil {
		if !errors.Is(err, ErrStaleRun) {
			log.Errorf("persist run failure: %v", err)
		}
		return o.current(ctx, id)
	}
	o.publish(s)
	return s
}

// abandon sends the session home if it is still loading for runID.
func (o *Orchestrator) abandon(ctx context.Context, id, runID string) storage.Session {
	message := o.messages.ErrorMessage(string(KindUnknown))
	s, err := o.store.UpdateSession(ctx, id, func(cur storage.Session) (storage.Session, error) {
		if err := owns(cur, runID); err != nil {
			return cur, err
		}
		return Abandon(cur, message), nil
	})
	if err != nil {
		if !errors.Is(err, ErrStaleRun) {
			logger.WithFields(logrus.Fields{"session": id, "run": runID}).Errorf("abandon run: %v", err)
		}
		return o.current(ctx, id)
	}
	o.publish(s)
	return s
}

func (o *Orchestrator) current(ctx context.Context, id string) storage.Session {
	s, err := o.store.GetSession(ctx, id)
	if err != nil {
		return storage.Session{ID: id}
	}
	return s
}

func (o *Orchestrator) track(runID string) {
	o.mu.Lock()
	o.runs[runID] = struct{}{}
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(runID string) {
	o.mu.Lock()
	delete(o.runs, runID)
	o.mu.Unlock()
}

func (o *Orchestrator) running(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[runID]
	return ok
}

func (o *Orchestrator) publish(s storage.Session) {
	o.events.Publish(events.Event{
		SessionID: s.ID,
		Screen:    s.Screen,
		RunID:     s.RunID,
		Error:     s.Error,
	})
}

func await(ctx context.Context, done <-chan storage.Session) (storage.Session, error) {
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return storage.Session{}, ctx.Err()
	}
}
