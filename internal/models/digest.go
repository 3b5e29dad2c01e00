package models

// Digest is one user's feedback activity over the last week
type Digest struct {
	Quarter string `json:"quarter"`
	// ToGive counts pending requests waiting on the user
	ToGive int `json:"to_give"`
	// AwaitingReplies counts the user's own requests nobody answered yet
	AwaitingReplies int `json:"awaiting_replies"`
	// Received counts feedback the user got during the week
	Received int `json:"received"`
}

func (d Digest) Empty() bool {
	return d.ToGive == 0 && d.AwaitingReplies == 0 && d.Received == 0
}
