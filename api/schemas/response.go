package schemas

// -- Response Schemas --

// ActionStatus is the outcome of an executed directive.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusError   ActionStatus = "error"
)

// NoURL is returned by getUrl when no tier of extraction produced a usable address.
const NoURL = "about:blank"

// ActionResponse is the confirmation returned for every executed directive.
// Adapters always produce one; failures are reported through Status and Message.
type ActionResponse struct {
	Status           ActionStatus      `json:"status"`
	Message          string            `json:"message"`
	Screenshot       string            `json:"screenshot,omitempty"`
	OmniParserResult *OmniParserResult `json:"omniParserResult,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Succeeded is a convenience for Status == StatusSuccess.
func (r *ActionResponse) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Success builds a successful response.
func Success(message, screenshot string) *ActionResponse {
	return &ActionResponse{Status: StatusSuccess, Message: message, Screenshot: screenshot}
}

// Failure builds an error response. detail is optional.
func Failure(message, detail string) *ActionResponse {
	return &ActionResponse{Status: StatusError, Message: message, Error: detail}
}

// OmniParserResult is the annotation produced by the external element-detection
// service. Boxes are normalized [x, y, w, h] in the 0..1 range, keyed by element id.
type OmniParserResult struct {
	ParsedContentList []string              `json:"parsed_content_list"`
	LabelCoordinates  map[string][4]float64 `json:"label_coordinates"`
}

// Empty reports whether the result carries no elements.
func (o *OmniParserResult) Empty() bool {
	return o == nil || (len(o.ParsedContentList) == 0 && len(o.LabelCoordinates) == 0)
}
