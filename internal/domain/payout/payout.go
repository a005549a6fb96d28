package payout

// LabelUnconfigured marks transactions recorded without a payout destination.
const LabelUnconfigured = "unconfigured"

// Method is the destination converted funds are nominally sent to. A method
// counts as configured when at least one field is set.
type Method struct {
	alias         string
	bankID        string
	walletAddress string
}

func NewMethod(alias, bankID, walletAddress string) *Method {
	return &Method{
		alias:         alias,
		bankID:        bankID,
		walletAddress: walletAddress,
	}
}

func (m *Method) Alias() string {
	return m.alias
}

func (m *Method) BankID() string {
	return m.bankID
}

func (m *Method) WalletAddress() string {
	return m.walletAddress
}

func (m *Method) Configured() bool {
	return m.alias != "" || m.bankID != "" || m.walletAddress != ""
}

// Label returns the destination recorded on a transaction: the first
// configured field wins, alias over bank identifier over wallet address.
func (m *Method) Label() string {
	switch {
	case m.alias != "":
		return m.alias
	case m.bankID != "":
		return m.bankID
	case m.walletAddress != "":
		return m.walletAddress
	}

	return LabelUnconfigured
}
