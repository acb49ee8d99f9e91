package postfinance

// Wire representations of the PostFinance Checkout API entities, reduced to
// the fields this service reads and writes. Amounts travel in minor units.

type lineItemDTO struct {
	UniqueID           string `json:"uniqueId"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Quantity           int    `json:"quantity"`
	AmountIncludingTax int64  `json:"amountIncludingTax"`
}

type transactionCreateDTO struct {
	Currency                string        `json:"currency"`
	LineItems               []lineItemDTO `json:"lineItems"`
	CustomerEmailAddress    string        `json:"customerEmailAddress,omitempty"`
	MerchantReference       string        `json:"merchantReference,omitempty"`
	SuccessURL              string        `json:"successUrl,omitempty"`
	FailedURL               string        `json:"failedUrl,omitempty"`
	TokenizationMode        string        `json:"tokenizationMode,omitempty"`
	Token                   int64         `json:"token,omitempty"`
	CustomersPresence       string        `json:"customersPresence,omitempty"`
	CompletionBehavior      string        `json:"completionBehavior,omitempty"`
	AllowedPaymentMethods   []int64       `json:"allowedPaymentMethodConfigurations,omitempty"`
	AutoConfirmationEnabled bool          `json:"autoConfirmationEnabled,omitempty"`
}

type tokenDTO struct {
	ID int64 `json:"id"`
}

type failureReasonDTO struct {
	Description map[string]string `json:"description"`
}

type transactionDTO struct {
	ID                  int64             `json:"id"`
	State               string            `json:"state"`
	Currency            string            `json:"currency"`
	AuthorizationAmount int64             `json:"authorizationAmount"`
	CompletedAmount     int64             `json:"completedAmount"`
	MerchantReference   string            `json:"merchantReference"`
	UserFailureMessage  string            `json:"userFailureMessage"`
	Token               *tokenDTO         `json:"token"`
	FailureReason       *failureReasonDTO `json:"failureReason"`
}

type refundCreateDTO struct {
	Transaction int64  `json:"transaction"`
	Amount      int64  `json:"amount"`
	ExternalID  string `json:"externalId"`
	Type        string `json:"type"`
}

type refundDTO struct {
	ID         int64  `json:"id"`
	State      string `json:"state"`
	Amount     int64  `json:"amount"`
	ExternalID string `json:"externalId"`
}

type spaceDTO struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
	Name  string `json:"name"`
}

type apiErrorDTO struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	DefaultMessage string `json:"defaultMessage"`
}
