package model

// Page is one fixed-size slice of an ordered key space.
type Page[T any] struct {
	Items         []T  `json:"items"`
	PageNumber    int  `json:"page"`
	PageSize      int  `json:"size"`
	TotalElements int  `json:"total_elements"`
	HasNext       bool `json:"has_next"`
	HasPrevious   bool `json:"has_previous"`
	IsFirst       bool `json:"is_first"`
	IsLast        bool `json:"is_last"`
}

// ValidatePageRequest rejects negative page numbers and non-positive sizes.
func ValidatePageRequest(pageNumber, pageSize int) error {
	if pageNumber < 0 {
		return NewValidationError("page", "must not be negative")
	}
	if pageSize <= 0 {
		return NewValidationError("size", "must be greater than 0")
	}
	return nil
}

// CardFilter narrows a card listing. Nil fields do not filter.
type CardFilter struct {
	AccountID  *int64
	CardNumber *string
}

type CardListRequest struct {
	AccountID  *int64
	CardNumber *string
	Page       int
	Size       int
}

// CardSummary is the list-view row. The card number is masked.
type CardSummary struct {
	MaskedCardNumber string `json:"card_number"`
	AccountID        int64  `json:"account_id"`
	CustomerID       int64  `json:"customer_id"`
}

type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// BrowseRequest positions a browse cursor at StartKey. An empty StartKey starts at the
// beginning (forward) or the end (backward) of the key space. SkipStart excludes
// StartKey itself, which is how the next or previous page continues from LastKey or FirstKey.
type BrowseRequest struct {
	StartKey  string
	Direction Direction
	PageSize  int
	SkipStart bool
}

type BrowsePage struct {
	Items       []string `json:"items"`
	FirstKey    string   `json:"first_key"`
	LastKey     string   `json:"last_key"`
	HasNext     bool     `json:"has_next"`
	HasPrevious bool     `json:"has_previous"`
}
