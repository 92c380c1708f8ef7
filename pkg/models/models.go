package models

import (
	"time"
)

// Mode определяет, нужна ли фоновая музыка в заказе
type Mode string

const (
	ModePlain     Mode = "plain"      // только голос
	ModeWithMusic Mode = "with_music" // голос + фоновая музыка
)

// Status представляет состояние заказа
type Status string

const (
	StatusIntake          Status = "intake"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusDelivered       Status = "delivered"
)

// DefaultMusicVolume громкость музыки по умолчанию
const DefaultMusicVolume = 0.10

// Order представляет заказ пользователя на озвучку
type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`         // нормализованный текст
	Mode        Mode      `json:"mode"`         // plain, with_music
	Music       []byte    `json:"-"`            // только для with_music
	MusicVolume float64   `json:"music_volume"` // 0..1
	Status      Status    `json:"status"`
	ChargeID    string    `json:"charge_id"`  // ID платежа у провайдера
	Deliveries  int       `json:"deliveries"` // количество успешных доставок
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasMusic проверяет, загружена ли музыка
func (o *Order) HasMusic() bool {
	return len(o.Music) > 0
}

// NeedsMix проверяет, нужно ли микшировать голос с музыкой
func (o *Order) NeedsMix() bool {
	return o.Mode == ModeWithMusic && o.HasMusic()
}

// Charge представляет созданную платежную операцию
type Charge struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	DisplayCode string            `json:"display_code"` // PIX "copia e cola"
	QRImage     []byte            `json:"-"`            // PNG с QR кодом
	Metadata    map[string]string `json:"metadata"`
}

// Ключи метаданных платежа
const (
	MetadataUserID  = "user_id"
	MetadataOrderID = "order_id"
	MetadataText    = "text"
)

// ChargeRecord представляет запись в журнале платежей
type ChargeRecord struct {
	ID          int64      `json:"id" db:"id"`
	ChargeID    string     `json:"charge_id" db:"charge_id"`
	OrderID     string     `json:"order_id" db:"order_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Text        string     `json:"text" db:"text"`
	Mode        Mode       `json:"mode" db:"mode"`
	Amount      float64    `json:"amount" db:"amount"`
	Status      string     `json:"status" db:"status"` // pending, paid, delivered
	Deliveries  int        `json:"deliveries" db:"deliveries"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	PaidAt      *time.Time `json:"paid_at" db:"paid_at"`
	DeliveredAt *time.Time `json:"delivered_at" db:"delivered_at"`
}

// Статусы записи журнала
const (
	ChargeStatusPending   = "pending"
	ChargeStatusPaid      = "paid"
	ChargeStatusDelivered = "delivered"
)
