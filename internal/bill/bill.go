package bill

// Status is the lifecycle tag assigned to a bill by the backend
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// Type is the expense category of a bill
type Type string

const (
	TypeTransport  Type = "Transports"
	TypeRestaurant Type = "Restaurants et bars"
	TypeLodging    Type = "Hôtel et logement"
	TypeOnline     Type = "Services en ligne"
	TypeIT         Type = "IT et électronique"
	TypeEquipment  Type = "Equipement et matériel"
	TypeSupplies   Type = "Fournitures de bureau"
)

// Types lists the categories in the order the form offers them
var Types = []Type{
	TypeTransport,
	TypeRestaurant,
	TypeLodging,
	TypeOnline,
	TypeIT,
	TypeEquipment,
	TypeSupplies,
}

// Bill represents one expense report line
type Bill struct {
	ID           string `json:"id,omitempty"`
	Email        string `json:"email"`
	Type         Type   `json:"type"`
	Name         string `json:"name"`
	Amount       int    `json:"amount"`
	Date         string `json:"date"` // YYYY-MM-DD
	VAT          string `json:"vat"`
	Pct          int    `json:"pct"`
	Commentary   string `json:"commentary"`
	FileURL      string `json:"fileUrl"`
	FileName     string `json:"fileName"`
	Status       Status `json:"status"`
	CommentAdmin string `json:"commentAdmin,omitempty"`
}

// HasFile reports whether the receipt attachment reference is complete
func (b Bill) HasFile() bool {
	return b.FileURL != "" && b.FileName != ""
}

// UserType distinguishes employees from administrators
type UserType string

const (
	UserEmployee UserType = "Employee"
	UserAdmin    UserType = "Admin"
)

// User is the logged-in principal
type User struct {
	Type  UserType `json:"type"`
	Email string   `json:"email"`
}

// DisplayBill is a bill with its date and status rendered for display.
// RawDate keeps the stored value so ordering never depends on formatting.
type DisplayBill struct {
	Bill
	RawDate       string
	DisplayDate   string
	DisplayStatus string
}
