package dao

import (
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/model"
)

func validateTemplate(t *model.Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalidf("name is required")
	}
	if t.Content == "" {
		return invalidf("content is required")
	}
	return nil
}

func GetTemplateById(db *gorm.DB, id int64) (*model.Template, error) {
	var t model.Template
	err := db.Model(&model.Template{}).Where("id = ?", id).Take(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func ListTemplates(db *gorm.DB, offset, limit int) ([]model.Template, int64, error) {
	var total int64
	if err := db.Model(&model.Template{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.Template
	err := db.Model(&model.Template{}).Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

func CreateTemplate(db *gorm.DB, t *model.Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Template{}).Where("name = ?", t.Name).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("template name already exists: %s", t.Name)
	}
	return db.Create(t).Error
}

func UpdateTemplate(db *gorm.DB, t *model.Template) error {
	if t.Id <= 0 {
		return invalidf("template id is required")
	}
	if err := validateTemplate(t); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Template{}).
		Where("name = ? AND id <> ?", t.Name, t.Id).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("template name already exists: %s", t.Name)
	}
	res := db.Model(&model.Template{}).Where("id = ?", t.Id).
		Select("name", "content", "description", "is_active").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTemplate：被未完结（draft/scheduled/running/paused）活动引用的模板不许删。
func DeleteTemplate(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var t model.Template
		if err := tx.Where("id = ?", id).Take(&t).Error; err != nil {
			return err
		}
		var cnt int64
		if err := tx.Model(&model.Campaign{}).
			Where("template_id = ? AND status IN ?", id,
				[]string{model.CampaignDraft, model.CampaignScheduled, model.CampaignRunning, model.CampaignPaused}).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return conflictf("template %s is used by %d open campaign(s)", t.Name, cnt)
		}
		return tx.Delete(&model.Template{}, id).Error
	})
}
