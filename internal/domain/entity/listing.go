package entity

import (
	"time"
)

const (
	CategoryWebDevelopment    = "web-development"
	CategoryMobileDevelopment = "mobile-development"
	CategoryUIUXDesign        = "ui-ux-design"
	CategoryGraphicDesign     = "graphic-design"
	CategoryContentWriting    = "content-writing"
	CategoryDigitalMarketing  = "digital-marketing"
	CategoryDataAnalysis      = "data-analysis"
	CategoryVideoEditing      = "video-editing"
	CategoryPhotography       = "photography"
	CategoryTranslation       = "translation"
	CategoryVirtualAssistant  = "virtual-assistant"
	CategoryOther             = "other"
)

const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceExpert       = "expert"
)

// Categories lists every listing category in display order.
var Categories = []string{
	CategoryWebDevelopment,
	CategoryMobileDevelopment,
	CategoryUIUXDesign,
	CategoryGraphicDesign,
	CategoryContentWriting,
	CategoryDigitalMarketing,
	CategoryDataAnalysis,
	CategoryVideoEditing,
	CategoryPhotography,
	CategoryTranslation,
	CategoryVirtualAssistant,
	CategoryOther,
}

// Listing is a freelance service offered by its owner.
type Listing struct {
	ID              string    `json:"id" firestore:"id"`
	OwnerUserID     string    `json:"owner_user_id" firestore:"userId"`
	Title           string    `json:"title" firestore:"title"`
	Description     string    `json:"description" firestore:"description"`
	Category        string    `json:"category" firestore:"category"`
	HourlyRate      float64   `json:"hourly_rate" firestore:"hourlyRate"`
	DeliveryTime    string    `json:"delivery_time" firestore:"deliveryTime"`
	Skills          string    `json:"skills" firestore:"skills"`
	ExperienceLevel string    `json:"experience_level" firestore:"experience"`
	CreatedAt       time.Time `json:"created_at" firestore:"createdAt"`
}

func (l *Listing) GetID() string   { return l.ID }
func (l *Listing) SetID(id string) { l.ID = id }
