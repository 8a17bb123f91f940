package lyapi

import "encoding/json"

// Wire shapes for the v2 catalog. Field tags carry the upstream's Chinese
// key names verbatim; renaming happens in the assembler

// catalogEnvelope is the list response for /v2/ivods
type catalogEnvelope struct {
	IVODs []catalogItem `json:"ivods"`
}

type catalogItem struct {
	IVODID json.Number `json:"IVOD_ID"`
	Date   string      `json:"日期"`
}

// recordEnvelope wraps /v2/ivods/{id}. error=true carries an API-level
// failure even on HTTP 200
type recordEnvelope struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RawRecord is one IVOD document as the API returns it
type RawRecord struct {
	IVODURL     string      `json:"IVOD_URL"`
	Date        string      `json:"日期"`
	MeetingTime string      `json:"會議時間"`
	Meeting     RawMeeting  `json:"會議資料"`
	VideoType   string      `json:"影片種類"`
	VideoStart  string      `json:"開始時間"`
	VideoEnd    string      `json:"結束時間"`
	VideoLength string      `json:"影片長度"`
	VideoURL    string      `json:"video_url"`
	SpeakerName string      `json:"委員名稱"`
	MeetingName string      `json:"會議名稱"`
	Transcript  *RawWhisper `json:"transcript"`

	// Gazette is nil when the key is absent; absent and empty both fall
	// through to the speech page
	Gazette *RawGazette `json:"gazette"`
}

// RawMeeting is the nested 會議資料 block
type RawMeeting struct {
	Code           json.Number `json:"會議代碼"`
	CodeStr        string      `json:"會議代碼:str"`
	Category       string      `json:"種類"`
	CommitteeNames []string    `json:"委員會代碼:str"`
	Title          string      `json:"標題"`
}

// RawWhisper holds the AI transcript segments
type RawWhisper struct {
	WhisperX []WhisperSegment `json:"whisperx"`
}

// WhisperSegment is one machine-transcribed chunk
type WhisperSegment struct {
	Text string `json:"text"`
}

// RawGazette holds the official transcript paragraph blocks
type RawGazette struct {
	Blocks [][]string `json:"blocks"`
}
