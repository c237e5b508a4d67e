package bot_commands

const ( //CallbackQuery commands

	Start = "0"
	//----------------admin---------------
	AdminMenu          = "1"
	AdminProducts      = "2"
	DeactivateProduct  = "3"
	AdminOrders        = "4"
	ShipOrder          = "5"
	RefundOrder        = "6"
	MarkOrderPaid      = "7"
	CancelOrder        = "8"
	StartCreateProduct = "9"
	EditPrices         = "10"

	//----------------user---------------
	Catalog_start = "20"
	ProductDetail = "21"
	AddToCart     = "22"
	BuyNow        = "23"
	ShowCart      = "24"
	Checkout      = "25"
	ClearCart     = "26"
	MyOrders      = "27"
	OrderDetail   = "28"
	PayOrder      = "29"
	Profile       = "30"

// -------------------all-------------------
)

// AdminState - шаг мастера создания товара
type AdminState int

const ( //admin_states
	None AdminState = iota
	Wait_for_product_name
	Wait_for_product_price
	Wait_for_product_stock
	Wait_for_product_description
	Wait_for_PriceList
	Wait_for_product_image
)
