package repository

import (
	"context"

	app "photoalbum/src/app"

	"gorm.io/gorm"
)

type LabelRepository struct {
	db *gorm.DB
}

func NewLabelRepository(db *gorm.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

// FindOrCreate returns the label called name, creating it with color when
// absent. A concurrent create of the same name resolves to the winner.
func (r *LabelRepository) FindOrCreate(ctx context.Context, name, color string) (*app.Label, error) {
	label, err := r.FindByName(ctx, name)
	if err == nil {
		return label, nil
	}
	if app.KindOf(err) != app.KindNotFound {
		return nil, err
	}

	label = &app.Label{Name: name, Color: color}
	if err := r.db.WithContext(ctx).Create(label).Error; err != nil {
		if isDuplicate(err) {
			return r.FindByName(ctx, name)
		}
		return nil, translate(err, "label")
	}
	return label, nil
}

func (r *LabelRepository) FindByName(ctx context.Context, name string) (*app.Label, error) {
	var label app.Label
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&label).Error; err != nil {
		return nil, translate(err, "label")
	}
	return &label, nil
}

func (r *LabelRepository) All(ctx context.Context) ([]app.Label, error) {
	labels := []app.Label{}
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&labels).Error; err != nil {
		return nil, translate(err, "label")
	}
	return labels, nil
}

// Delete drops the label's image associations and then the label itself.
func (r *LabelRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM image_labels WHERE label_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&app.Label{}).Error
	})
	return translate(err, "label")
}
