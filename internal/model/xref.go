package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	CardNumberLength = 16
	MaxCustomerID    = 999_999_999
	MaxAccountID     = 99_999_999_999
)

var (
	cardNumberRule = "required,len=" + strconv.Itoa(CardNumberLength) + ",digits"
	customerIDRule = "required,gt=0,max=" + strconv.FormatInt(MaxCustomerID, 10)
	accountIDRule  = "required,gt=0,max=" + strconv.FormatInt(MaxAccountID, 10)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "numeric" accepts signs and decimal points, keys need plain ASCII digits.
	err := v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return IsDigits(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register digits validation: %v", err))
	}
	return v
}

// CardXref is the card -> account -> customer association.
type CardXref struct {
	CardNumber string `json:"card_number"`
	CustomerID int64  `json:"customer_id"`
	AccountID  int64  `json:"account_id"`
}

// NewCardXref builds a validated association.
func NewCardXref(cardNumber string, customerID, accountID int64) (CardXref, error) {
	x := CardXref{
		CardNumber: strings.TrimSpace(cardNumber),
		CustomerID: customerID,
		AccountID:  accountID,
	}
	if err := x.Validate(); err != nil {
		return CardXref{}, err
	}
	return x, nil
}

// Validate reports the first failing field in card, customer, account order.
func (x CardXref) Validate() error {
	if err := ValidateCardNumber(x.CardNumber); err != nil {
		return err
	}
	if err := ValidateCustomerID(x.CustomerID); err != nil {
		return err
	}
	return ValidateAccountID(x.AccountID)
}

func (x CardXref) String() string {
	return fmt.Sprintf("xref{card=%s customer=%d account=%d}", MaskCardNumber(x.CardNumber), x.CustomerID, x.AccountID)
}

func ValidateCardNumber(cardNumber string) error {
	return fieldError("card_number", validate.Var(cardNumber, cardNumberRule))
}

func ValidateAccountID(accountID int64) error {
	return fieldError("account_id", validate.Var(accountID, accountIDRule))
}

func ValidateCustomerID(customerID int64) error {
	return fieldError("customer_id", validate.Var(customerID, customerIDRule))
}

func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MaskCardNumber renders ****-****-****-NNNN. Anything shorter than four characters is fully masked.
func MaskCardNumber(cardNumber string) string {
	if len(cardNumber) < 4 {
		return "****-****-****-****"
	}
	return "****-****-****-" + cardNumber[len(cardNumber)-4:]
}

func fieldError(field string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(field, err.Error())
	}
	return NewValidationError(field, ruleMessage(verrs[0].Tag(), verrs[0].Param()))
}

func ruleMessage(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "len":
		return "must be exactly " + param + " characters"
	case "digits":
		return "must contain only digits"
	case "gt":
		return "must be greater than " + param
	case "max":
		return "must not exceed " + param
	default:
		return "failed " + tag + " rule"
	}
}
