package dao

import (
	"regexp"
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/model"
)

var filterTypes = map[string]bool{
	model.FilterDestination: true,
	model.FilterSource:      true,
	model.FilterShortCode:   true,
	model.FilterContent:     true,
	model.FilterTag:         true,
	model.FilterUser:        true,
}

// 建/改共用的字段校验。is_regex 时在这里就把正则编译一遍，
// 烂正则不落库（评估器就不用兜底了）。
func validateFilter(f *model.Filter) error {
	f.Fid = strings.TrimSpace(f.Fid)
	f.Type = strings.TrimSpace(strings.ToLower(f.Type))
	f.Parameter = strings.TrimSpace(f.Parameter)

	if f.Fid == "" {
		return invalidf("fid is required")
	}
	if !filterTypes[f.Type] {
		return invalidf("unknown filter type: %s", f.Type)
	}
	if f.Type == model.FilterTag && f.Parameter == "" {
		return invalidf("tag filter requires parameter")
	}
	if f.Type != model.FilterTag && f.Parameter != "" {
		return invalidf("parameter only valid for tag filters")
	}
	if f.Value == "" {
		return invalidf("value is required")
	}
	if f.IsRegex {
		pat := f.Value
		if !f.IsCaseSensitive {
			pat = "(?i)" + pat
		}
		if _, err := regexp.Compile(pat); err != nil {
			return invalidf("invalid regex: %v", err)
		}
	}
	return nil
}

func GetFilterById(db *gorm.DB, id int64) (*model.Filter, error) {
	var f model.Filter
	err := db.Model(&model.Filter{}).Where("id = ?", id).Take(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func GetFilterByFid(db *gorm.DB, fid string) (*model.Filter, error) {
	var f model.Filter
	err := db.Model(&model.Filter{}).Where("fid = ?", fid).Take(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFilters：type 为空返回全部
func ListFilters(db *gorm.DB, typ string, offset, limit int) ([]model.Filter, int64, error) {
	q := db.Model(&model.Filter{})
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.Filter
	err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

func CreateFilter(db *gorm.DB, f *model.Filter) error {
	if err := validateFilter(f); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Filter{}).Where("fid = ?", f.Fid).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("filter fid already exists: %s", f.Fid)
	}
	return db.Create(f).Error
}

func UpdateFilter(db *gorm.DB, f *model.Filter) error {
	if f.Id <= 0 {
		return invalidf("filter id is required")
	}
	if err := validateFilter(f); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Filter{}).
		Where("fid = ? AND id <> ?", f.Fid, f.Id).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("filter fid already exists: %s", f.Fid)
	}
	res := db.Model(&model.Filter{}).Where("id = ?", f.Id).
		Select("fid", "type", "parameter", "value", "is_regex",
			"is_case_sensitive", "negate", "is_active", "description").
		Updates(f)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteFilter：被任何路由引用的过滤器不许删（同一事务内扫引用，
// filters 是 JSON 数组文本，LIKE 不可靠，取回来解码后比对）。
func DeleteFilter(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var f model.Filter
		if err := tx.Where("id = ?", id).Take(&f).Error; err != nil {
			return err
		}
		var routes []model.Route
		if err := tx.Find(&routes).Error; err != nil {
			return err
		}
		for _, r := range routes {
			for _, fid := range r.Filters {
				if fid == id {
					return conflictf("filter %s is referenced by route ord=%d", f.Fid, r.Ord)
				}
			}
		}
		return tx.Delete(&model.Filter{}, id).Error
	})
}

// SnapshotFilters：取 id→Filter 全量映射（含停用的，评估器自己跳过），
// 供路由评估与 route 校验使用。
func SnapshotFilters(db *gorm.DB) (map[int64]model.Filter, error) {
	var all []model.Filter
	if err := db.Find(&all).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]model.Filter, len(all))
	for _, f := range all {
		out[f.Id] = f
	}
	return out, nil
}
