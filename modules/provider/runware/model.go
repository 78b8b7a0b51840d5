package runware

// RunwareRequest - Runware API 요청 구조체
type RunwareRequest struct {
	TaskType        string   `json:"taskType"`
	TaskUUID        string   `json:"taskUUID"`
	PositivePrompt  string   `json:"positivePrompt"`
	Model           string   `json:"model"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	NumberResults   int      `json:"numberResults"`
	OutputFormat    string   `json:"outputFormat"`
	Seed            int64    `json:"seed,omitempty"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
}

// RunwareResponse - Runware API 응답 구조체
type RunwareResponse struct {
	Data []struct {
		TaskType  string `json:"taskType"`
		TaskUUID  string `json:"taskUUID"`
		ImageURL  string `json:"imageURL"`
		ImageUUID string `json:"imageUUID"`
		Seed      int64  `json:"seed"`
	} `json:"data"`
	Error  string `json:"error,omitempty"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}
