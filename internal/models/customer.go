package models

import "time"

type Customer struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:128;not null"`
	Company      string `gorm:"size:128"`
	Email        string `gorm:"size:254;index"`
	Country      string `gorm:"size:2"`
	City         string `gorm:"size:128"`
	Address      string `gorm:"size:256"`
	SalesTaxName string `gorm:"size:64"`
	SalesTax     float64
	Currency     string `gorm:"size:4"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	PaymentMethods []PaymentMethod `gorm:"foreignKey:CustomerID"`
}
