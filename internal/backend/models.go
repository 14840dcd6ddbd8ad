package backend

// nearestStationPayload is the backend's nearest-station answer. The backend
// sends more fields than the pipeline needs (raw haversine distance, the full
// source feature); only the reconcilable subset is decoded.
type nearestStationPayload struct {
	Name             string  `json:"name"`
	DivisionCode     string  `json:"divcode"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	TravelDistanceKm float64 `json:"travel_distance_km"`
	TravelTimeMin    float64 `json:"travel_time_min"`
}

type nearestStationResponse struct {
	NearestStation nearestStationPayload `json:"nearest_station"`
}

type topCrimesRequest struct {
	StationName  string `json:"station_name"`
	DivisionCode string `json:"divcode,omitempty"`
}

type topCrimesResponse struct {
	TopCrimes []string `json:"top_crimes"`
}

type userEmailResponse struct {
	Email string `json:"email"`
}

type smsRequest struct {
	DivisionCode string `json:"divcode"`
	Message      string `json:"message"`
}

// errorResponse is the backend's error envelope, a FastAPI-style detail
// string.
type errorResponse struct {
	Detail string `json:"detail"`
}
