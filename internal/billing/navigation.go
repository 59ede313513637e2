package billing

// Paths of the views a flow can navigate to
const (
	PathBills   = "/bills"
	PathNewBill = "/bills/new"
)

// Navigator moves the presentation layer to another view
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path string) {
	f(path)
}
