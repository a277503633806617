package dto

type TrainNumberRequest struct {
	TrainNumber string `json:"train_number"`
}

type PNRNumberRequest struct {
	PNRNumber string `json:"pnr_number"`
}
