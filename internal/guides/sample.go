package guides

import "encoding/json"

// sampleItinerary is the canned document served to free-tier callers. It
// follows the same schema the generation oracle is instructed to emit, so
// clients can render the sample with the generated-itinerary code path.
var sampleItinerary = json.RawMessage(`{
  "city": "Lisbon",
  "country": "Portugal",
  "days": [
    {
      "day": 1,
      "morning": "Ride tram 28 through Alfama and climb to the Miradouro da Senhora do Monte for the first view over the rooftops.",
      "afternoon": "Walk down to the Se cathedral, then follow the river to the Praca do Comercio and the Time Out Market for a late lunch.",
      "evening": "Take the ferry to Cacilhas at sunset and eat grilled fish on the quay looking back at the city lights."
    }
  ]
}`)

// SampleItinerary returns the static sample document.
func (s *Service) SampleItinerary() json.RawMessage {
	return sampleItinerary
}
