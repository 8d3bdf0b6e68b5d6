package order

import "fmt"

// Status is the order lifecycle state stored in the order_status enum column.
type Status string

const (
	StatusNew            Status = "new"
	StatusInProgress     Status = "inprogress"
	StatusReadyToDeliver Status = "readytodeliver"
	StatusDelivered      Status = "delivered"
)

// ParseStatus validates a raw status value coming from the database or a
// notification payload.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNew, StatusInProgress, StatusReadyToDeliver, StatusDelivered:
		return Status(s), nil
	}

	return "", fmt.Errorf("unknown order status: %q", s)
}

func (s Status) String() string {
	return string(s)
}
