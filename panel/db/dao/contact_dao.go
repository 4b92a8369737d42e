package dao

import (
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/common"
	"smspanel/panel/model"
)

var contactStatuses = map[string]bool{
	model.ContactActive:   true,
	model.ContactOptedOut: true,
	model.ContactBlocked:  true,
}

func validateContact(c *model.Contact) error {
	p, ok := common.NormalizePhone(c.PhoneNumber)
	if !ok {
		return invalidf("invalid phone number: %s", c.PhoneNumber)
	}
	c.PhoneNumber = p
	if c.Status == "" {
		c.Status = model.ContactActive
	}
	if !contactStatuses[c.Status] {
		return invalidf("unknown contact status: %s", c.Status)
	}
	for i, g := range c.Groups {
		c.Groups[i] = strings.TrimSpace(g)
	}
	return nil
}

func GetContactById(db *gorm.DB, id int64) (*model.Contact, error) {
	var c model.Contact
	err := db.Model(&model.Contact{}).Where("id = ?", id).Take(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts：group/status 任一为空则不过滤。group 匹配走 JSON 文本 LIKE
// 粗筛 + 解码精筛（分组名里可能有引号逃逸，LIKE 只是缩小集合）。
func ListContacts(db *gorm.DB, group, status string, offset, limit int) ([]model.Contact, int64, error) {
	q := db.Model(&model.Contact{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if group != "" {
		q = q.Where("groups_list LIKE ?", "%"+group+"%")
	}
	var rows []model.Contact
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	if group != "" {
		keep := rows[:0]
		for _, c := range rows {
			for _, g := range c.Groups {
				if g == group {
					keep = append(keep, c)
					break
				}
			}
		}
		rows = keep
	}
	total := int64(len(rows))
	if offset >= len(rows) {
		return []model.Contact{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], total, nil
}

func CreateContact(db *gorm.DB, c *model.Contact) error {
	if err := validateContact(c); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Contact{}).Where("phone_number = ?", c.PhoneNumber).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("phone number already exists: %s", c.PhoneNumber)
	}
	return db.Create(c).Error
}

func UpdateContact(db *gorm.DB, c *model.Contact) error {
	if c.Id <= 0 {
		return invalidf("contact id is required")
	}
	if err := validateContact(c); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Contact{}).
		Where("phone_number = ? AND id <> ?", c.PhoneNumber, c.Id).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("phone number already exists: %s", c.PhoneNumber)
	}
	res := db.Model(&model.Contact{}).Where("id = ?", c.Id).
		Select("phone_number", "first_name", "last_name", "email", "groups_list", "custom_fields", "status").
		Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func DeleteContact(db *gorm.DB, id int64) error {
	res := db.Delete(&model.Contact{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportContacts：批量导入。逐条校验，号码重复跳过不报错，
// 格式烂的记到 Errors 里继续导（半途失败比全量回滚更难收拾）。
func ImportContacts(db *gorm.DB, list []model.Contact) (*ImportResult, error) {
	r := &ImportResult{}
	for i := range list {
		c := list[i]
		if err := validateContact(&c); err != nil {
			r.Skipped++
			r.Errors = append(r.Errors, err.Error())
			continue
		}
		var cnt int64
		if err := db.Model(&model.Contact{}).Where("phone_number = ?", c.PhoneNumber).Count(&cnt).Error; err != nil {
			return r, err
		}
		if cnt > 0 {
			r.Skipped++
			continue
		}
		if err := db.Create(&c).Error; err != nil {
			return r, err
		}
		r.Imported++
	}
	return r, nil
}

// ExpandGroups：展开一组分组为可发送联系人（去重；退订/拉黑跳过）。
// groups 为空表示全部 active 联系人。
func ExpandGroups(db *gorm.DB, groups []string) ([]model.Contact, error) {
	var all []model.Contact
	if err := db.Model(&model.Contact{}).
		Where("status = ?", model.ContactActive).
		Order("id ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	out := make([]model.Contact, 0, len(all))
	for _, c := range all {
		for _, g := range c.Groups {
			if want[g] {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}
