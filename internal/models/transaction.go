package models

// LogNotification is one logsSubscribe delivery
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// ParsedTransaction is the subset of a jsonParsed getTransaction result the parser needs
type ParsedTransaction struct {
	Slot      int64
	BlockTime *int64
	Meta      *TransactionMeta
	Message   TransactionMessage
}

type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PostTokenBalances []TokenBalance
}

type TransactionMessage struct {
	AccountKeys []AccountKey
}

type AccountKey struct {
	Pubkey   string
	Signer   bool
	Writable bool
}

// TokenBalance is a post-execution SPL token balance entry
type TokenBalance struct {
	AccountIndex  int
	Mint          string
	Owner         string
	UITokenAmount UITokenAmount
}

type UITokenAmount struct {
	Amount         string
	Decimals       int
	UIAmount       *float64
	UIAmountString string
}
