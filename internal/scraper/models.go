package scraper

type StationStatus struct {
	Station string `json:"station"`
	Date    string `json:"date"`
	Arrives string `json:"arrives"`
	Departs string `json:"departs"`
	Delay   string `json:"delay"`
	// Status is one of completed, current or upcoming.
	Status string `json:"status"`
}

type LiveStatus struct {
	TrainNumber    string          `json:"train_number"`
	TrainName      string          `json:"train_name"`
	CurrentStatus  string          `json:"current_status"`
	CurrentStation string          `json:"current_station"`
	NextStation    string          `json:"next_station"`
	LastUpdated    string          `json:"last_updated"`
	Schedule       []StationStatus `json:"schedule"`
	HasData        bool            `json:"has_data"`
}

type ScheduleStop struct {
	SrNo     string `json:"sr_no"`
	Station  string `json:"station"`
	Code     string `json:"code"`
	Arrives  string `json:"arrives"`
	Departs  string `json:"departs"`
	Halt     string `json:"halt"`
	Distance string `json:"distance"`
	AvgDelay string `json:"avg_delay"`
	Day      string `json:"day"`
}

type Schedule struct {
	TrainNumber string         `json:"train_number"`
	TrainName   string         `json:"train_name"`
	Route       string         `json:"route"`
	RunningDays string         `json:"running_days"`
	Stations    []ScheduleStop `json:"stations"`
}

type Journey struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Date     string `json:"date"`
	Platform string `json:"platform"`
	Class    string `json:"class"`
	Quota    string `json:"quota"`
}

type PassengerStatus struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
	Coach     string `json:"coach"`
	Berth     string `json:"berth"`
}

type Passenger struct {
	SrNo          string          `json:"sr_no"`
	CurrentStatus PassengerStatus `json:"current_status"`
	BookingStatus string          `json:"booking_status"`
	Coach         string          `json:"coach"`
}

type PNRStatus struct {
	PNR         string      `json:"pnr"`
	TrainNumber string      `json:"train_number"`
	TrainName   string      `json:"train_name"`
	Journey     Journey     `json:"train_journey"`
	Passengers  []Passenger `json:"passengers"`
	ChartStatus string      `json:"chart_status"`
	Rating      *float64    `json:"rating"`
}
