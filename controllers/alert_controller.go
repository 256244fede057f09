package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pricewatch_backend/models"
	"pricewatch_backend/services/alerts"
)

// AlertController handles alert CRUD and trigger acknowledgment
type AlertController struct {
	db       *gorm.DB
	recorder *alerts.Recorder
	cycle    *alerts.Cycle
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB, recorder *alerts.Recorder, cycle *alerts.Cycle) *AlertController {
	return &AlertController{db: db, recorder: recorder, cycle: cycle}
}

// alertRequest is the create/update request body
type alertRequest struct {
	Symbol      string          `json:"symbol" binding:"required"`
	TargetPrice decimal.Decimal `json:"target_price" binding:"required"`
	Condition   string          `json:"condition" binding:"required"`
	IsActive    *bool           `json:"is_active"`
}

// CreateAlert creates a new price alert
// POST /api/v1/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert := models.Alert{
		Symbol:      req.Symbol,
		TargetPrice: req.TargetPrice,
		Condition:   req.Condition,
		IsActive:    true,
	}
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}
	if err := alert.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Reject an exact duplicate of a still-active alert
	var existing models.Alert
	err := ac.db.Where("symbol = ? AND condition = ? AND target_price = ? AND is_active = ?",
		alert.Symbol, alert.Condition, alert.TargetPrice, true).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "An identical active alert already exists", "alert_id": existing.ID})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing alerts"})
		return
	}

	if err := ac.db.Create(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

// GetAlerts returns alerts with optional filters
// GET /api/v1/alerts
func (ac *AlertController) GetAlerts(c *gin.Context) {
	var alertList []models.Alert

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset := (page - 1) * limit

	query := ac.db.Model(&models.Alert{})
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", models.NormalizeSymbol(symbol))
	}
	if active := c.Query("active"); active != "" {
		isActive, err := strconv.ParseBool(active)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		query = query.Where("is_active = ?", isActive)
	}

	var total int64
	query.Count(&total)

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alertList).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alertList,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetAlert returns a single alert by ID
// GET /api/v1/alerts/:id
func (ac *AlertController) GetAlert(c *gin.Context) {
	alert, ok := ac.findAlert(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// UpdateAlert updates an alert's target, condition or active flag
// PUT /api/v1/alerts/:id
func (ac *AlertController) UpdateAlert(c *gin.Context) {
	alert, ok := ac.findAlert(c)
	if !ok {
		return
	}

	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert.Symbol = req.Symbol
	alert.TargetPrice = req.TargetPrice
	alert.Condition = req.Condition
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}
	if err := alert.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ac.db.Save(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// DeleteAlert removes an alert and all of its triggers
// DELETE /api/v1/alerts/:id
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	alert, ok := ac.findAlert(c)
	if !ok {
		return
	}

	if err := ac.db.Select("Triggers").Delete(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted"})
}

// GetAlertTriggers returns an alert's trigger history
// GET /api/v1/alerts/:id/triggers
func (ac *AlertController) GetAlertTriggers(c *gin.Context) {
	alert, ok := ac.findAlert(c)
	if !ok {
		return
	}

	var triggers []models.TriggeredAlert
	query := ac.db.Where("alert_id = ?", alert.ID)
	if unread := c.Query("unread"); unread == "true" {
		query = query.Where("is_read = ?", false)
	}
	if err := query.Order("triggered_at DESC").Find(&triggers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch triggers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": triggers})
}

// MarkTriggerRead acknowledges a trigger
// POST /api/v1/triggers/:id/read
func (ac *AlertController) MarkTriggerRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trigger ID"})
		return
	}

	if err := ac.recorder.MarkRead(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Trigger not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark trigger read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Trigger marked read"})
}

// RunEvaluation runs one evaluation cycle on demand
// POST /api/v1/evaluate
func (ac *AlertController) RunEvaluation(c *gin.Context) {
	summary, err := ac.cycle.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// findAlert loads the alert from the :id path param, replying 400/404
// on failure
func (ac *AlertController) findAlert(c *gin.Context) (models.Alert, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return models.Alert{}, false
	}

	var alert models.Alert
	if err := ac.db.First(&alert, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return models.Alert{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return models.Alert{}, false
	}
	return alert, true
}
