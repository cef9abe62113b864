package domain

// Customer is the e-commerce profile of the person behind a ticket.
type Customer struct {
	ID              string   `json:"_id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	PhoneNumbers    []string `json:"phoneNumbers"`
	Addresses       []string `json:"addresses"`
	Role            string   `json:"role"`
	IsEmailVerified bool     `json:"isEmailVerified"`
	Age             int      `json:"age"`
	IsLoggedIn      bool     `json:"isLoggedIn"`
	Provider        string   `json:"provider"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// CustomerResponse is the body of GET /profile/{customerId}.
type CustomerResponse struct {
	Message string    `json:"message"`
	User    *Customer `json:"user"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID       string  `json:"_id"`
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Product  string  `json:"product"`
}

// ShippingAddress is where an order goes.
type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Order is a customer's purchase.
type Order struct {
	ID              string          `json:"_id"`
	UserID          string          `json:"userId"`
	OrderItems      []OrderItem     `json:"orderItems"`
	PhoneNumbers    []string        `json:"phoneNumbers"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	ShippingPrice   float64         `json:"shippingPrice"`
	TotalPrice      float64         `json:"totalPrice"`
	PaymentMethod   string          `json:"paymentMethod"`
	OrderStatus     string          `json:"orderStatus"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          string          `json:"paidAt"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     string          `json:"deliveredAt"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

// OrdersResponse is the body of GET /order/my-orders/{customerId}.
type OrdersResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    []Order `json:"data"`
}

// CustomerOverview is what the console shows next to a ticket.
type CustomerOverview struct {
	Customer *Customer `json:"customer"`
	Orders   []Order   `json:"orders"`
}
