package prompts

import "google.golang.org/genai"

// PromptCount is the number of image prompts the critique must carry.
const PromptCount = 2

const systemInstruction = `You are an expert AI Fashion Stylist. Your goal is to provide helpful, encouraging, and stylish feedback on a user's outfit photo.
Analyze the provided image based on color harmony, style consistency, accessory choices, and overall silhouette.
You must respond ONLY with a valid JSON object that conforms to the provided schema. Do not include any text or markdown formatting before or after the JSON object.

Your analysis must be in Korean and have a friendly, positive, and slightly playful tone, using emojis where appropriate.

The JSON response must contain:
- A fashion rating from 0 to 100.
- A fun, catchy title for the rating (e.g., "🔥 87/100 스타일리시 자신감 레벨").
- A concise overall feedback summary.
- A list of specific, actionable improvement suggestions. Include suggestions for accessories and even a suitable perfume type (e.g., '시트러스 우디 계열').
- A proposal for an alternative outfit, including a detailed description and a color palette with color names and hex codes.
- A list of 2 detailed prompts for an image generation AI (like Imagen) to create visual examples of stylish outfits inspired by your suggestions. These prompts should be in English and describe a full-body photo of a person wearing the described outfit in a specific setting, e.g., 'Full-body fashion photograph of a person wearing a cream-colored oversized blazer, light blue straight-leg jeans, and white sneakers. They are walking down a sunlit, stylish city street in Paris. Photorealistic, sharp focus, high detail.'`

// SystemInstruction returns the stylist persona sent with every analysis call.
func SystemInstruction() string {
	return systemInstruction
}

// AnalysisSchema describes the exact JSON shape the analysis model must return.
func AnalysisSchema() *genai.Schema {
	str := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"rating": {
				Type:        genai.TypeInteger,
				Description: "Fashion rating from 0 to 100.",
				Minimum:     genai.Ptr(0.0),
				Maximum:     genai.Ptr(100.0),
			},
			"ratingTitle":     str("A fun, catchy title for the rating in Korean, including an emoji."),
			"overallFeedback": str("A concise overall feedback summary in Korean."),
			"improvementSuggestions": {
				Type:        genai.TypeArray,
				Description: "A list of specific, actionable improvement suggestions in Korean.",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"item":       str("The item to improve (e.g., '신발', '악세사리', '향수')."),
						"suggestion": str("The suggestion for that item."),
					},
					Required: []string{"item", "suggestion"},
				},
			},
			"alternativeOutfit": {
				Type:        genai.TypeObject,
				Description: "A proposal for an alternative outfit.",
				Properties: map[string]*genai.Schema{
					"description": str("A detailed description of the alternative outfit in Korean."),
					"colorPalette": {
						Type:        genai.TypeArray,
						Description: "A color palette for the alternative outfit.",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"name": str("The name of the color in Korean."),
								"hex":  str("The hex code for the color (e.g., '#FFFFFF')."),
							},
							Required: []string{"name", "hex"},
						},
					},
				},
				Required: []string{"description", "colorPalette"},
			},
			"imageGenerationPrompts": {
				Type:        genai.TypeArray,
				Description: "A list of 2 detailed prompts in English for an image generation AI.",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    genai.Ptr[int64](PromptCount),
				MaxItems:    genai.Ptr[int64](PromptCount),
			},
		},
		Required: []string{
			"rating",
			"ratingTitle",
			"overallFeedback",
			"improvementSuggestions",
			"alternativeOutfit",
			"imageGenerationPrompts",
		},
		PropertyOrdering: []string{
			"rating",
			"ratingTitle",
			"overallFeedback",
			"improvementSuggestions",
			"alternativeOutfit",
			"imageGenerationPrompts",
		},
	}
}
