package domain

import "time"

// WizardStep identifies how far a creation draft has progressed.
type WizardStep string

const (
	// StepCategory means no selection has been made yet.
	StepCategory WizardStep = "category"
	// StepProduct means a category is chosen and a product is pending.
	StepProduct WizardStep = "product"
	// StepOptions means a product is chosen and group options are pending.
	StepOptions WizardStep = "options"
	// StepConfirm means all inputs are present and the draft can be confirmed.
	StepConfirm WizardStep = "confirm"
)

// SessionDraft is the per-user state of the session creation flow. Steps are
// cumulative: going back never clears what was already entered, except that
// switching category invalidates a product chosen under the old category.
type SessionDraft struct {
	UserID      string        `firestore:"-" json:"userId"`
	CategoryID  string        `firestore:"categoryId,omitempty" json:"categoryId,omitempty"`
	ProductID   string        `firestore:"productId,omitempty" json:"productId,omitempty"`
	TargetSize  int           `firestore:"targetSize,omitempty" json:"targetSize,omitempty"`
	Duration    time.Duration `firestore:"duration,omitempty" json:"duration,omitempty"`
	Visibility  Visibility    `firestore:"visibility,omitempty" json:"visibility,omitempty"`
	PaymentMode PaymentMode   `firestore:"paymentMode,omitempty" json:"paymentMode,omitempty"`
	CreatedAt   time.Time     `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `firestore:"updatedAt" json:"updatedAt"`
}

// SelectCategory records the category choice. Changing to a different
// category drops the product selection; the remaining options survive.
func (d *SessionDraft) SelectCategory(categoryID string) {
	if d.CategoryID != "" && d.CategoryID != categoryID {
		d.ProductID = ""
	}
	d.CategoryID = categoryID
}

// Step returns the next incomplete step of the draft.
func (d SessionDraft) Step() WizardStep {
	switch {
	case d.CategoryID == "":
		return StepCategory
	case d.ProductID == "":
		return StepProduct
	case d.TargetSize == 0 || d.Duration == 0 || !d.Visibility.Valid() || !d.PaymentMode.Valid():
		return StepOptions
	default:
		return StepConfirm
	}
}

// Complete reports whether every step has been filled in.
func (d SessionDraft) Complete() bool {
	return d.Step() == StepConfirm
}
