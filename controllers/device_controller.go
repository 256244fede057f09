package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pricewatch_backend/models"
)

// DeviceController handles device-token registration
type DeviceController struct {
	db *gorm.DB
}

// NewDeviceController creates a new device controller
func NewDeviceController(db *gorm.DB) *DeviceController {
	return &DeviceController{db: db}
}

// registerRequest is the registration request body
type registerRequest struct {
	Token  string `json:"token" binding:"required"`
	UserID string `json:"user_id"`
}

// RegisterDevice registers (or reactivates) a device token
// POST /api/v1/devices
func (dc *DeviceController) RegisterDevice(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := models.UpsertDeviceToken(dc.db, req.Token, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": device})
}

// UnregisterDevice deactivates a device token
// DELETE /api/v1/devices/:token
func (dc *DeviceController) UnregisterDevice(c *gin.Context) {
	token := c.Param("token")

	result := dc.db.Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Update("is_active", false)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unregister device"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device unregistered"})
}

// GetDevices lists registered devices
// GET /api/v1/devices
func (dc *DeviceController) GetDevices(c *gin.Context) {
	var devices []models.DeviceToken
	query := dc.db.Model(&models.DeviceToken{})
	if active := c.Query("active"); active == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&devices).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch devices"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": devices})
}
