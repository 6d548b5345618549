package app

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type (
	// ImageStore persists image metadata. Lookups of absent images fail with
	// KindNotFound.
	ImageStore interface {
		Create(ctx context.Context, image *Image) error
		// FindOwned returns the image with id if it belongs to ownerID and has
		// one of statuses. Labels are loaded.
		FindOwned(ctx context.Context, id, ownerID string, statuses ...ImageStatus) (*Image, error)
		// ListByOwner returns images newest first. A non-empty labels slice keeps
		// only images carrying every one of them.
		ListByOwner(ctx context.Context, ownerID string, status ImageStatus, labels []string) ([]Image, error)
		CountActive(ctx context.Context, ownerID string) (int64, error)
		SetStatus(ctx context.Context, id string, status ImageStatus) error
		AttachLabel(ctx context.Context, image *Image, label *Label) error
		DetachLabel(ctx context.Context, image *Image, labelID string) error
	}

	// LabelStore persists labels. Names are stored as given; callers normalise.
	LabelStore interface {
		FindOrCreate(ctx context.Context, name, color string) (*Label, error)
		FindByName(ctx context.Context, name string) (*Label, error)
		All(ctx context.Context) ([]Label, error)
		// Delete removes the label and its image associations. Absent ids are
		// not an error.
		Delete(ctx context.Context, id string) error
	}

	ImageServiceConfig struct {
		Images   ImageStore
		Labels   LabelStore
		Backend  StorageBackend
		Resizer  *Resizer
		Pending  *PendingUploads
		Metrics  *Metrics
		Log      logrus.FieldLogger
		WriteTTL time.Duration
		ReadTTL  time.Duration
		Now      func() time.Time
	}

	ImageService struct {
		images   ImageStore
		labels   LabelStore
		backend  StorageBackend
		resizer  *Resizer
		pending  *PendingUploads
		metrics  *Metrics
		log      logrus.FieldLogger
		writeTTL time.Duration
		readTTL  time.Duration
		now      func() time.Time
	}

	directUploader interface {
		UploadURL() string
	}
)

const (
	maxLabelName = 64
	accessDenied = "Image not found or access denied"
)

var labelColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func NewImageService(cfg ImageServiceConfig) *ImageService {
	s := &ImageService{
		images:   cfg.Images,
		labels:   cfg.Labels,
		backend:  cfg.Backend,
		resizer:  cfg.Resizer,
		pending:  cfg.Pending,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
		writeTTL: cfg.WriteTTL,
		readTTL:  cfg.ReadTTL,
		now:      cfg.Now,
	}
	if s.resizer == nil {
		s.resizer = NewResizer()
	}
	if s.pending == nil {
		s.pending = NewPendingUploads()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("component", "images")
	if s.writeTTL <= 0 {
		s.writeTTL = DefaultWriteTTL
	}
	if s.readTTL <= 0 {
		s.readTTL = DefaultReadTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log.WithField("storage", s.backend.Kind()).Info("image service configured")
	return s
}

func (s *ImageService) Backend() StorageBackend { return s.backend }

// IngestBytes resizes raw to fit inside 800x800 and stores it. Without a key
// the image is stored under the anonymous namespace.
func (s *ImageService) IngestBytes(ctx context.Context, raw []byte, filename, key string) (string, error) {
	if key == "" {
		key = StorageKey("", filename, s.now())
	} else {
		if err := ValidateKey(key); err != nil {
			return "", err
		}
		// Only keys handed out by IssueUploadTarget and not yet recorded may
		// be written, so stored images cannot be overwritten.
		if _, pending := s.pending.Owner(key); !pending {
			s.log.WithField("key", key).Warn("upload to a key that was not issued")
			return "", BadRequestf("Upload key was not issued or has expired")
		}
	}
	resized, err := s.resizer.Fit(raw)
	if err != nil {
		return "", err
	}
	stored, err := s.backend.Put(ctx, key, resized.Data, resized.ContentType)
	if err != nil {
		return "", s.storageError("failed to store image", err)
	}
	s.metrics.IngestedBytes.Add(float64(len(resized.Data)))
	s.log.WithFields(logrus.Fields{
		"key":    stored,
		"bytes":  len(resized.Data),
		"width":  resized.Width,
		"height": resized.Height,
	}).Debug("image stored")
	return stored, nil
}

// IssueUploadTarget returns where the client should push the bytes of
// filename: a presigned PUT for S3 or the direct-upload endpoint for local
// storage.
func (s *ImageService) IssueUploadTarget(ctx context.Context, filename, contentType, userID string) (*UploadTarget, error) {
	if filename == "" || contentType == "" {
		return nil, BadRequestf("filename and contentType required")
	}
	key := StorageKey(userID, filename, s.now())

	var target string
	switch s.backend.Kind() {
	case StorageS3:
		u, err := s.backend.PresignedWriteURL(ctx, key, contentType, s.writeTTL)
		if err != nil {
			return nil, s.storageError("failed to sign upload", err)
		}
		target = u
	default:
		uploader, ok := s.backend.(directUploader)
		if !ok {
			return nil, Internal("failed to sign upload", ErrNotSupported)
		}
		target = uploader.UploadURL()
	}

	owner := userID
	if owner == "" {
		owner = anonymousOwner
	}
	s.pending.Track(key, owner, s.writeTTL)
	s.metrics.UploadTargets.WithLabelValues(string(s.backend.Kind())).Inc()
	return &UploadTarget{URL: target, Key: key}, nil
}

// RecordUpload persists metadata for bytes already stored under
// upload.StorageKey. The key must live in the owner's namespace or the
// anonymous one and must not have been issued to someone else. The quota
// check and the insert are not atomic.
func (s *ImageService) RecordUpload(ctx context.Context, upload NewUpload) (*Image, error) {
	if upload.StorageKey == "" || upload.Filename == "" {
		return nil, BadRequestf("s3Key and filename are required")
	}
	if upload.OwnerID == "" {
		return nil, BadRequestf("User not authenticated")
	}
	if err := ValidateKey(upload.StorageKey); err != nil {
		return nil, err
	}
	if err := s.checkKeyOwner(upload); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, upload.OwnerID); err != nil {
		return nil, err
	}

	image := &Image{
		OwnerID:    upload.OwnerID,
		StorageKey: upload.StorageKey,
		Filename:   upload.Filename,
		FileSize:   upload.FileSize,
		Status:     StatusActive,
		Labels:     []Label{},
		UploadedAt: s.now(),
	}
	if upload.ContentType != "" {
		contentType := upload.ContentType
		image.ContentType = &contentType
	}
	if err := s.images.Create(ctx, image); err != nil {
		return nil, err
	}
	s.metrics.ImagesRecorded.Inc()

	fields := logrus.Fields{"image": image.ID, "owner": image.OwnerID, "key": image.StorageKey}
	owner, tracked := s.pending.Confirm(upload.StorageKey)
	if !tracked {
		s.metrics.UntrackedUploads.Inc()
		s.log.WithFields(fields).Warn("metadata saved for a key without a pending upload")
	} else {
		s.log.WithFields(fields).WithField("issued_to", owner).Info("image recorded")
	}
	return image, nil
}

func (s *ImageService) checkKeyOwner(upload NewUpload) error {
	namespace := keyOwner(upload.StorageKey)
	issuedTo, pending := s.pending.Owner(upload.StorageKey)
	foreign := namespace != anonymousOwner && namespace != SanitizeFilename(upload.OwnerID)
	if pending && issuedTo != anonymousOwner && issuedTo != upload.OwnerID {
		foreign = true
	}
	if !foreign {
		return nil
	}
	s.metrics.ForeignKeys.Inc()
	s.log.WithFields(logrus.Fields{
		"owner":     upload.OwnerID,
		"key":       upload.StorageKey,
		"issued_to": issuedTo,
	}).Warn("metadata save for a key owned by another user")
	return BadRequestf("Image key does not belong to user")
}

func (s *ImageService) checkQuota(ctx context.Context, ownerID string) error {
	count, err := s.images.CountActive(ctx, ownerID)
	if err != nil {
		return err
	}
	if count >= MaxActiveImages {
		s.metrics.QuotaRejections.Inc()
		return BadRequestf("Image limit reached (max %d images per user)", MaxActiveImages)
	}
	return nil
}

// ListForOwner lists the owner's images newest first, active ones unless
// filter selects archived. Label names are matched case-insensitively and
// all of them must be present.
func (s *ImageService) ListForOwner(ctx context.Context, ownerID string, filter ListFilter) ([]Image, error) {
	status := filter.Status
	switch status {
	case "":
		status = StatusActive
	case StatusActive, StatusArchived:
	default:
		return nil, BadRequestf("status must be %s or %s", StatusActive, StatusArchived)
	}
	return s.images.ListByOwner(ctx, ownerID, status, NormalizeLabelNames(filter.Labels))
}

// ownedImage is the single ownership guard: the store only returns images
// owned by userID, so a foreign id is indistinguishable from an absent one.
func (s *ImageService) ownedImage(ctx context.Context, imageID, userID string, statuses ...ImageStatus) (*Image, error) {
	if imageID == "" || userID == "" {
		return nil, NotFoundf("Image with ID %s not found", imageID)
	}
	if len(statuses) == 0 {
		statuses = []ImageStatus{StatusActive, StatusArchived}
	}
	return s.images.FindOwned(ctx, imageID, userID, statuses...)
}

func denyAccess(err error) error {
	if KindOf(err) == KindNotFound {
		return BadRequestf(accessDenied)
	}
	return err
}

// GetOwned returns the image if userID owns it. Absent, deleted and foreign
// images all fail with the same BadRequest.
func (s *ImageService) GetOwned(ctx context.Context, imageID, userID string) (*Image, error) {
	image, err := s.ownedImage(ctx, imageID, userID)
	if err != nil {
		return nil, denyAccess(err)
	}
	return image, nil
}

// SoftDelete marks the image deleted. The stored bytes are kept.
func (s *ImageService) SoftDelete(ctx context.Context, imageID, userID string) error {
	image, err := s.ownedImage(ctx, imageID, userID)
	if err != nil {
		return denyAccess(err)
	}
	return s.transition(ctx, image, StatusDeleted)
}

// Archive hides an active image from the default listing and frees its
// quota slot.
func (s *ImageService) Archive(ctx context.Context, imageID, userID string) (*Image, error) {
	image, err := s.ownedImage(ctx, imageID, userID, StatusActive)
	if err != nil {
		return nil, denyAccess(err)
	}
	if err := s.transition(ctx, image, StatusArchived); err != nil {
		return nil, err
	}
	return image, nil
}

// Restore makes an archived image active again, subject to the quota.
func (s *ImageService) Restore(ctx context.Context, imageID, userID string) (*Image, error) {
	image, err := s.ownedImage(ctx, imageID, userID, StatusArchived)
	if err != nil {
		return nil, denyAccess(err)
	}
	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, image, StatusActive); err != nil {
		return nil, err
	}
	return image, nil
}

func (s *ImageService) transition(ctx context.Context, image *Image, status ImageStatus) error {
	if err := s.images.SetStatus(ctx, image.ID, status); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"image": image.ID, "from": image.Status, "to": status}).Info("image status changed")
	image.Status = status
	s.metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	return nil
}

// AddLabel attaches the label called name to the image, creating the label
// on first use.
func (s *ImageService) AddLabel(ctx context.Context, imageID, userID, name, color string) (*Image, error) {
	name, err := validateLabel(name, color)
	if err != nil {
		return nil, err
	}
	image, err := s.ownedImage(ctx, imageID, userID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, NotFoundf("Image with ID %s not found", imageID)
		}
		return nil, err
	}
	label, err := s.labels.FindOrCreate(ctx, name, color)
	if err != nil {
		return nil, err
	}
	if image.HasLabel(label.ID) {
		return nil, BadRequestf("Label already exists on this image")
	}
	if err := s.images.AttachLabel(ctx, image, label); err != nil {
		return nil, err
	}
	image.Labels = append(image.Labels, *label)
	return image, nil
}

// RemoveLabel detaches labelID from the image.
func (s *ImageService) RemoveLabel(ctx context.Context, imageID, userID, labelID string) (*Image, error) {
	image, err := s.ownedImage(ctx, imageID, userID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, NotFoundf("Image with ID %s not found", imageID)
		}
		return nil, err
	}
	if !image.HasLabel(labelID) {
		return nil, NotFoundf("Label not found on this image")
	}
	if err := s.images.DetachLabel(ctx, image, labelID); err != nil {
		return nil, err
	}
	kept := image.Labels[:0]
	for _, l := range image.Labels {
		if l.ID != labelID {
			kept = append(kept, l)
		}
	}
	image.Labels = kept
	return image, nil
}

func (s *ImageService) AllLabels(ctx context.Context) ([]Label, error) {
	return s.labels.All(ctx)
}

// CreateLabel creates a label. Names are compared after normalisation, so
// "Vacation" and "vacation" collide.
func (s *ImageService) CreateLabel(ctx context.Context, name, color string) (*Label, error) {
	name, err := validateLabel(name, color)
	if err != nil {
		return nil, err
	}
	if _, err := s.labels.FindByName(ctx, name); err == nil {
		return nil, BadRequestf("Label with this name already exists")
	} else if KindOf(err) != KindNotFound {
		return nil, err
	}
	return s.labels.FindOrCreate(ctx, name, color)
}

// DeleteLabel removes the label from every image and deletes it.
func (s *ImageService) DeleteLabel(ctx context.Context, labelID string) error {
	if err := s.labels.Delete(ctx, labelID); err != nil {
		return err
	}
	s.log.WithField("label", labelID).Info("label deleted")
	return nil
}

// ResolveURL returns a URL the image bytes can be read from.
func (s *ImageService) ResolveURL(ctx context.Context, key string) (string, error) {
	u, err := s.backend.PresignedReadURL(ctx, key, s.readTTL)
	if err != nil {
		return "", s.storageError("failed to sign download", err)
	}
	return u, nil
}

func (s *ImageService) storageError(message string, err error) error {
	switch {
	case errors.Is(err, ErrBackendUnavailable):
		return BadRequestf("S3 not configured on server")
	case KindOf(err) != KindInternal:
		return err
	default:
		return Internal(message, err)
	}
}

// NormalizeLabelName is the single normalisation rule for label names.
func NormalizeLabelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeLabelNames normalises, drops empty names and de-duplicates.
func NormalizeLabelNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeLabelName(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func validateLabel(name, color string) (string, error) {
	name = NormalizeLabelName(name)
	if name == "" {
		return "", BadRequestf("label name is required")
	}
	if len(name) > maxLabelName {
		return "", BadRequestf("label name must be at most %d characters", maxLabelName)
	}
	if color != "" && !labelColor.MatchString(color) {
		return "", BadRequestf("color must be a hex value like #FF5733")
	}
	return name, nil
}
