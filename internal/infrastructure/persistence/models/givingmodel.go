package models

import (
	"time"
)

// GivingModel is the durable donation record. Rows are append-only: a record
// is written exactly once per originating charge (unique tp_trade_id) or per
// bulk-imported row (unique siyuan_id) and never mutated afterward.
//
// The json tags are the settlement job payload wire shape, carried over from
// the front-end facing field names.
type GivingModel struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:255" json:"name"`
	Amount      int64   `gorm:"not null" json:"amount"`
	Currency    string  `gorm:"size:8;not null" json:"currency"`
	Date        string  `gorm:"size:10;not null" json:"date"`
	PhoneNumber string  `gorm:"column:phone_number;size:32" json:"phoneNumber"`
	Email       string  `gorm:"size:255" json:"email"`
	Receipt     bool    `json:"receipt"`
	PaymentType string  `gorm:"column:paymentType;size:64" json:"paymentType"`
	Upload      string  `gorm:"size:64" json:"upload"`
	ReceiptName string  `gorm:"column:receiptName;size:255" json:"receiptName"`
	NationalID  string  `gorm:"column:nationalid;size:32" json:"nationalid"`
	Company     string  `gorm:"size:255" json:"company"`
	TaxID       string  `gorm:"column:taxid;size:32" json:"taxid"`
	Note        string  `gorm:"size:1024" json:"note"`
	Campus      string  `gorm:"size:64" json:"campus"`
	TPTradeID   *string `gorm:"column:tp_trade_id;size:64;uniqueIndex" json:"tpTradeID,omitempty"`
	IsSuccess   bool    `gorm:"column:is_success" json:"isSuccess"`
	Env         string  `gorm:"size:16;not null" json:"env"`
	Imported    bool    `gorm:"default:false" json:"imported"`
	SiyuanID    *string `gorm:"column:siyuan_id;size:64;uniqueIndex" json:"siyuanId,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (GivingModel) TableName() string {
	return "confgive"
}
