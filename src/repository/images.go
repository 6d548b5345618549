package repository

import (
	"context"

	app "photoalbum/src/app"

	"gorm.io/gorm"
)

type ImageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func orderLabels(db *gorm.DB) *gorm.DB {
	return db.Order("labels.name ASC")
}

func (r *ImageRepository) Create(ctx context.Context, image *app.Image) error {
	// Labels are attached separately; never upsert them from here.
	return translate(r.db.WithContext(ctx).Omit("Labels").Create(image).Error, "image")
}

func (r *ImageRepository) FindOwned(ctx context.Context, id, ownerID string, statuses ...app.ImageStatus) (*app.Image, error) {
	var image app.Image
	err := r.db.WithContext(ctx).
		Preload("Labels", orderLabels).
		Where("id = ? AND owner_id = ? AND status IN ?", id, ownerID, statuses).
		First(&image).Error
	if err != nil {
		return nil, translate(err, "image")
	}
	return &image, nil
}

func (r *ImageRepository) ListByOwner(ctx context.Context, ownerID string, status app.ImageStatus, labels []string) ([]app.Image, error) {
	query := r.db.WithContext(ctx).
		Preload("Labels", orderLabels).
		Where("owner_id = ? AND status = ?", ownerID, status)
	if len(labels) > 0 {
		tagged := r.db.Table("image_labels").
			Select("image_labels.image_id").
			Joins("JOIN labels ON labels.id = image_labels.label_id").
			Where("LOWER(labels.name) IN ?", labels).
			Group("image_labels.image_id").
			Having("COUNT(DISTINCT labels.id) = ?", len(labels))
		query = query.Where("id IN (?)", tagged)
	}

	images := []app.Image{}
	if err := query.Order("uploaded_at DESC").Find(&images).Error; err != nil {
		return nil, translate(err, "image")
	}
	for i := range images {
		if images[i].Labels == nil {
			images[i].Labels = []app.Label{}
		}
	}
	return images, nil
}

func (r *ImageRepository) CountActive(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&app.Image{}).
		Where("owner_id = ? AND status = ?", ownerID, app.StatusActive).
		Count(&count).Error
	return count, translate(err, "image")
}

func (r *ImageRepository) SetStatus(ctx context.Context, id string, status app.ImageStatus) error {
	result := r.db.WithContext(ctx).Model(&app.Image{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return translate(result.Error, "image")
	}
	if result.RowsAffected == 0 {
		return app.NotFoundf("image not found")
	}
	return nil
}

func (r *ImageRepository) AttachLabel(ctx context.Context, image *app.Image, label *app.Label) error {
	err := r.db.WithContext(ctx).
		Exec("INSERT INTO image_labels (image_id, label_id) VALUES (?, ?)", image.ID, label.ID).Error
	if err != nil && isDuplicate(err) {
		return app.BadRequestf("Label already exists on this image")
	}
	return translate(err, "image label")
}

func (r *ImageRepository) DetachLabel(ctx context.Context, image *app.Image, labelID string) error {
	err := r.db.WithContext(ctx).
		Exec("DELETE FROM image_labels WHERE image_id = ? AND label_id = ?", image.ID, labelID).Error
	return translate(err, "image label")
}
