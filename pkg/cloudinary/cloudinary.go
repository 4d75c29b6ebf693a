package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultFolder is used when no upload folder is configured.
const DefaultFolder = "homework/attachments"

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// AttachmentStore uploads homework attachments to Cloudinary.
type AttachmentStore struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
	suffix func() string
}

// New constructs an attachment store. All three credentials are required.
func New(cfg Config, logger zerolog.Logger) (*AttachmentStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &AttachmentStore{
		client: cld,
		folder: folderOrDefault(cfg.Folder),
		logger: logger.With().Str("component", "cloudinary").Logger(),
		suffix: func() string { return uuid.NewString()[:8] },
	}, nil
}

// Folder reports the destination folder for uploads.
func (s *AttachmentStore) Folder() string {
	return s.folder
}

// Upload sends the file to Cloudinary and returns its secure URL.
func (s *AttachmentStore) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     buildPublicID(name, s.suffix()),
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected attachment: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("attachment uploaded")

	return result.SecureURL, nil
}

func folderOrDefault(folder string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return DefaultFolder
	}
	return folder
}

func buildPublicID(name, suffix string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}

	return fmt.Sprintf("%s-%s", strings.ToLower(base), suffix)
}
