package models

// TransactionParties mirrors the party assignment the escrow service holds
// for one transaction. The vault core only needs it to decide which actor is
// the entitled counterpart for disclosure.
type TransactionParties struct {
	TransactionID string
	BuyerID       string
	SellerID      string
}

// EntitledViewer returns the actor entitled to request disclosure: the
// paying party on the transaction.
func (t *TransactionParties) EntitledViewer() string {
	return t.BuyerID
}
