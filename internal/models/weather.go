package models

// Weather is the payload returned by the upstream current.json endpoint and served to clients.
// Values are copied freely; nothing mutates a Weather after it is decoded.
type Weather struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

type Location struct {
	Name      string `json:"name"`
	Country   string `json:"country"`
	Localtime string `json:"localtime"`
}

// Current holds the current conditions. Temperature is Celsius, wind speed kph.
type Current struct {
	TempC    float64 `json:"temp_c"`
	WindKph  float64 `json:"wind_kph"`
	WindDir  string  `json:"wind_dir"`
	Humidity int64   `json:"humidity"`
}
