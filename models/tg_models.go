package models

// CallBackData - содержимое callback_data inline-кнопок.
// Telegram ограничивает callback_data 64 байтами, поэтому поля короткие.
type CallBackData struct {
	Command string `json:"com"`
	ID      string `json:"id"`
	Arg     string `json:"arg"`
}

// TelegramProfile - данные пользователя Telegram, которые сохраняем в БД
type TelegramProfile struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}
