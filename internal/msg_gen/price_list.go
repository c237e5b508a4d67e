package messages

import (
	"fmt"
	"strconv"
	"strings"

	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const priceListHeader = "ID | Название | Цена | Кол-во"

// (АДМИН) Создает образец сообщения для редактирования цен и остатков
func MakeMessage_PriceListForEdit(products []models.Product) string {
	var message strings.Builder
	message.WriteString("Скопируйте данное сообщение и отправьте с внесенными изменениями.\n")
	message.WriteString("(редактировать можно цену и количество)\n")
	if len(products) == 0 {
		message.WriteString("Нет товаров")
		return message.String()
	}
	message.WriteString("\n" + priceListHeader + "\n")
	message.WriteString("----------------------------------\n")
	for _, p := range products {
		message.WriteString(fmt.Sprintf("%s | %s | %s | %d\n",
			p.ID,
			esc(strings.ReplaceAll(p.Name, "|", "/")),
			p.Price.StringFixed(2),
			p.Stock))
	}
	return message.String()
}

// (АДМИН) Парсинг отредактированного прайс-листа.
// Строки без UUID в первой колонке (шапка, разделитель, пояснения) пропускаются.
func ParsePriceList(msg string) ([]models.ProductUpdate, error) {
	var updates []models.ProductUpdate
	for n, line := range strings.Split(strings.TrimSpace(msg), "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		price, err := ParsePrice(parts[2])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", n+1, err)
		}
		stock, err := ParseStock(parts[3])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", n+1, err)
		}
		updates = append(updates, models.ProductUpdate{ID: id, Price: price, Stock: stock})
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no product rows found", models.ErrValidation)
	}
	return updates, nil
}

// ParsePrice принимает "12.5" и "12,5"; цена должна быть больше нуля
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid price %q", models.ErrValidation, s)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price must be positive", models.ErrValidation)
	}
	return price.Round(2), nil
}

func ParseStock(s string) (int, error) {
	stock, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || stock < 0 {
		return 0, fmt.Errorf("%w: invalid stock %q", models.ErrValidation, strings.TrimSpace(s))
	}
	return stock, nil
}

// ParseQuantity - пустая строка означает 1
func ParseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	qty, err := strconv.Atoi(s)
	if err != nil || qty <= 0 {
		return 0, models.ErrInvalidQuantity
	}
	return qty, nil
}

// (АДМИН) ParseCreateProductArgs разбирает "/create_product <название> <цена> <остаток>".
// Название может содержать пробелы, цена и остаток - два последних слова.
func ParseCreateProductArgs(args string) (*models.Product, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: usage: /create_product <name> <price> <stock>", models.ErrValidation)
	}
	n := len(fields)
	price, err := ParsePrice(fields[n-2])
	if err != nil {
		return nil, err
	}
	stock, err := ParseStock(fields[n-1])
	if err != nil {
		return nil, err
	}
	return &models.Product{Name: strings.Join(fields[:n-2], " "), Price: price, Stock: stock}, nil
}

// Тексты шагов мастера создания товара
const (
	AskProductName        = "Введите название товара:"
	AskProductPrice       = "Введите цену (например 12.50):"
	AskProductStock       = "Введите количество на складе:"
	AskProductDescription = "Введите описание или \"-\", чтобы пропустить:"
	AskProductImage       = "Отправьте фото товара или /skip, чтобы пропустить:"
	AskPriceList          = "Отправьте отредактированный прайс-лист."
)

func ProductCreated(p *models.Product) string {
	return fmt.Sprintf("Товар добавлен: %s, %s, остаток %d", esc(p.Name), money(p.Price), p.Stock)
}
