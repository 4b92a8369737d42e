package dao

import (
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/common/ttime"
	"smspanel/panel/model"
)

func validateCampaign(tx *gorm.DB, cp *model.Campaign) error {
	cp.Name = strings.TrimSpace(cp.Name)
	if cp.Name == "" {
		return invalidf("name is required")
	}
	if cp.TemplateId <= 0 && strings.TrimSpace(cp.MessageContent) == "" {
		return invalidf("template_id or message_content is required")
	}
	if cp.TemplateId > 0 {
		var cnt int64
		if err := tx.Model(&model.Template{}).
			Where("id = ? AND is_active = ?", cp.TemplateId, true).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return invalidf("template %d does not exist or is inactive", cp.TemplateId)
		}
	}
	if cp.Throughput < 0 {
		return invalidf("throughput must be >= 0")
	}
	return nil
}

func GetCampaignById(db *gorm.DB, id int64) (*model.Campaign, error) {
	var cp model.Campaign
	err := db.Model(&model.Campaign{}).Where("id = ?", id).Take(&cp).Error
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func ListCampaigns(db *gorm.DB, status string, offset, limit int) ([]model.Campaign, int64, error) {
	q := db.Model(&model.Campaign{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.Campaign
	err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

func CreateCampaign(db *gorm.DB, cp *model.Campaign) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := validateCampaign(tx, cp); err != nil {
			return err
		}
		if cp.Status == "" {
			cp.Status = model.CampaignDraft
		}
		if cp.Status == model.CampaignScheduled && cp.ScheduledAt == nil {
			return invalidf("scheduled campaign requires scheduled_at")
		}
		if cp.Status != model.CampaignDraft && cp.Status != model.CampaignScheduled {
			return invalidf("new campaign must be draft or scheduled")
		}
		return tx.Create(cp).Error
	})
}

// UpdateCampaign：只有 draft / scheduled 可改内容。
func UpdateCampaign(db *gorm.DB, cp *model.Campaign) error {
	if cp.Id <= 0 {
		return invalidf("campaign id is required")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var cur model.Campaign
		if err := tx.Where("id = ?", cp.Id).Take(&cur).Error; err != nil {
			return err
		}
		if cur.Status != model.CampaignDraft && cur.Status != model.CampaignScheduled {
			return conflictf("campaign %s cannot be edited in status %s", cur.Name, cur.Status)
		}
		if err := validateCampaign(tx, cp); err != nil {
			return err
		}
		return tx.Model(&model.Campaign{}).Where("id = ?", cp.Id).
			Select("name", "template_id", "message_content", "sender_id",
				"groups_list", "throughput", "description", "scheduled_at").
			Updates(cp).Error
	})
}

func DeleteCampaign(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var cur model.Campaign
		if err := tx.Where("id = ?", id).Take(&cur).Error; err != nil {
			return err
		}
		if cur.Status == model.CampaignRunning || cur.Status == model.CampaignPaused {
			return conflictf("stop campaign %s before deleting (status %s)", cur.Name, cur.Status)
		}
		return tx.Delete(&model.Campaign{}, id).Error
	})
}

// 状态机：draft→scheduled、draft/scheduled→running、running→paused、
// paused→running、draft/scheduled/running/paused→cancelled；
// runner 侧 running→completed/failed。
var campaignNext = map[string]map[string]bool{
	model.CampaignScheduled: {
		model.CampaignDraft: true,
	},
	model.CampaignRunning: {
		model.CampaignDraft:     true,
		model.CampaignScheduled: true,
		model.CampaignPaused:    true,
	},
	model.CampaignPaused: {
		model.CampaignRunning: true,
	},
	model.CampaignCancelled: {
		model.CampaignDraft:     true,
		model.CampaignScheduled: true,
		model.CampaignRunning:   true,
		model.CampaignPaused:    true,
	},
	model.CampaignCompleted: {
		model.CampaignRunning: true,
	},
	model.CampaignFailed: {
		model.CampaignRunning: true,
	},
}

// TransitionCampaign：带前置状态校验的状态迁移；非法迁移报冲突。
func TransitionCampaign(db *gorm.DB, id int64, to string) (*model.Campaign, error) {
	var out *model.Campaign
	err := db.Transaction(func(tx *gorm.DB) error {
		var cur model.Campaign
		if err := tx.Where("id = ?", id).Take(&cur).Error; err != nil {
			return err
		}
		from, ok := campaignNext[to]
		if !ok || !from[cur.Status] {
			return conflictf("cannot move campaign %s from %s to %s", cur.Name, cur.Status, to)
		}
		up := map[string]any{"status": to}
		now := ttime.Now()
		switch to {
		case model.CampaignRunning:
			if cur.StartedAt == nil {
				up["started_at"] = &now
			}
		case model.CampaignCompleted, model.CampaignCancelled, model.CampaignFailed:
			up["completed_at"] = &now
		}
		if err := tx.Model(&model.Campaign{}).Where("id = ?", id).Updates(up).Error; err != nil {
			return err
		}
		cur.Status = to
		out = &cur
		return nil
	})
	return out, err
}

// ListDueScheduled：scheduled 且到点的活动（runner tick 用）
func ListDueScheduled(db *gorm.DB, now string) ([]model.Campaign, error) {
	var out []model.Campaign
	err := db.Model(&model.Campaign{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", model.CampaignScheduled, now).
		Find(&out).Error
	return out, err
}

// BumpCampaignStats：runner 回写发送进度
func BumpCampaignStats(db *gorm.DB, id int64, sent, failed int64, cost float64) error {
	return db.Exec(`UPDATE campaign SET sent = sent + ?, failed = failed + ?, total_cost = total_cost + ? WHERE id = ?`,
		sent, failed, cost, id).Error
}

func SetCampaignTotalRecipients(db *gorm.DB, id int64, n int64) error {
	return db.Exec(`UPDATE campaign SET total_recipients = ? WHERE id = ?`, n, id).Error
}
