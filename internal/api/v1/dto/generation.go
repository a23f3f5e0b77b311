package dto

// ImageRequestDTO requests an image generation. Image is an optional
// base64-encoded source image for image-to-image prompts.
type ImageRequestDTO struct {
	Prompt   string `json:"prompt" validate:"required,min=1,max=4000"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ImageResponseDTO returns the stored asset URL and the remaining balance.
type ImageResponseDTO struct {
	URL       string `json:"url"`
	Remaining int    `json:"remaining"`
}

// VideoRequestDTO requests an asynchronous video generation.
type VideoRequestDTO struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=4000"`
}

// VideoResponseDTO acknowledges a queued video job.
type VideoResponseDTO struct {
	Status    string `json:"status"`
	Remaining int    `json:"remaining"`
}
