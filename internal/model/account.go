package model

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type SignupResponse struct {
	MemberID int64 `json:"memberId"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type CreateTradeRequest struct {
	Title string `json:"title"`
}

type Trade struct {
	TradeID  int64  `json:"tradeId"`
	SellerID int64  `json:"sellerId"`
	Title    string `json:"title"`
}
