package utils

import (
	"strings"
	"tg_shop/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// Currency - символ валюты в текстах бота, задаётся из CURRENCY при старте
var Currency = "¥"

func Money(d decimal.Decimal) string {
	return Currency + d.StringFixed(2)
}

func Code_request(data models.CallBackData) string { // кодирует запрос в строку "cmd|id|arg"
	parts := []string{data.Command, data.ID, data.Arg}
	for len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "|")
}

func Decode_request(encoded string) models.CallBackData {
	parts := strings.SplitN(encoded, "|", 3)

	data := models.CallBackData{}

	if len(parts) > 0 {
		data.Command = parts[0]
	}
	if len(parts) > 1 {
		data.ID = parts[1]
	}
	if len(parts) > 2 {
		data.Arg = parts[2]
	}

	return data
}

// Sender - часть *tgbotapi.BotAPI, которой пользуются обработчики
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func SendMessage(bot Sender, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := bot.Send(msg)
	return err
}

func SendWithKeyboard(bot Sender, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	_, err := bot.Send(msg)
	return err
}

func SendPhoto(bot Sender, chatID int64, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "qrcode.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	_, err := bot.Send(photo)
	return err
}

// SendPhotoFile отправляет уже загруженное в Telegram фото (FileID) или фото по ссылке (FileURL)
func SendPhotoFile(bot Sender, chatID int64, file tgbotapi.RequestFileData, caption string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = keyboard
	_, err := bot.Send(photo)
	return err
}

func DeleteMessage(bot Sender, chatID int64, msgID int) error {
	_, err := bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	return err
}

// AnswerCallback убирает "часики" на кнопке
func AnswerCallback(bot Sender, callbackID, text string) error {
	_, err := bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func SetWebhook(bot Sender, webhookURL string) error {
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return err
	}
	_, err = bot.Request(wh)
	return err
}
