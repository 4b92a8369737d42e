package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

/******** DTO ********/

type contactDTO struct {
	PhoneNumber string            `json:"phone_number"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Email       string            `json:"email"`
	Groups      []string          `json:"groups"`
	Custom      map[string]string `json:"custom_fields"`
	Status      string            `json:"status"`
}

func (d *contactDTO) toModel() *model.Contact {
	st := strings.ToLower(strings.TrimSpace(d.Status))
	if st == "" {
		st = model.ContactActive
	}
	return &model.Contact{
		PhoneNumber: strings.TrimSpace(d.PhoneNumber),
		FirstName:   strings.TrimSpace(d.FirstName),
		LastName:    strings.TrimSpace(d.LastName),
		Email:       strings.TrimSpace(d.Email),
		Groups:      model.StringList(d.Groups),
		Custom:      model.StringMap(d.Custom),
		Status:      st,
	}
}

/******** Handlers ********/

// GET /api/contact?group=&status=&page=&size=
func (s *Server) listContact(c *gin.Context) {
	group := strings.TrimSpace(c.Query("group"))
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	list, total, err := dao.ListContacts(s.App.MasterDB.GormDataSource, group, status, offset, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// GET /api/contact/:id
func (s *Server) getContact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := dao.GetContactById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /api/contact
func (s *Server) createContact(c *gin.Context) {
	var d contactDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := d.toModel()
	if err := dao.CreateContact(s.App.MasterDB.GormDataSource, m); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// PUT /api/contact/:id
func (s *Server) updateContact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d contactDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := d.toModel()
	m.Id = id
	if err := dao.UpdateContact(s.App.MasterDB.GormDataSource, m); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetContactById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/contact/:id
func (s *Server) deleteContact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteContact(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/contact/import  {"list":[{...},...]}
// 坏号码跳过并记录，号码重复跳过，其余继续导入。
func (s *Server) importContact(c *gin.Context) {
	var req struct {
		List []contactDTO `json:"list"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.List) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "list required"})
		return
	}
	in := make([]model.Contact, 0, len(req.List))
	for i := range req.List {
		in = append(in, *req.List[i].toModel())
	}
	res, err := dao.ImportContacts(s.App.MasterDB.GormDataSource, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
