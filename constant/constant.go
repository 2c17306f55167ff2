package constant

type ViewState string

const (
	ViewStateCamera    ViewState = "CAMERA"
	ViewStateRecording ViewState = "RECORDING"
	ViewStatePreview   ViewState = "PREVIEW"
	ViewStateUploading ViewState = "UPLOADING"
	ViewStateSuccess   ViewState = "SUCCESS"
	ViewStateError     ViewState = "ERROR"
)

func (s ViewState) String() string {
	return string(s)
}

type NetworkTier string

const (
	NetworkTierSlow   NetworkTier = "SLOW"
	NetworkTierNormal NetworkTier = "NORMAL"
)

type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "PENDING"
	UploadStatusInFlight  UploadStatus = "IN_FLIGHT"
	UploadStatusSucceeded UploadStatus = "SUCCEEDED"
	UploadStatusFailed    UploadStatus = "FAILED"
)

type CheckinStatus string

const (
	CheckinStatusPending   CheckinStatus = "PENDING"
	CheckinStatusCompleted CheckinStatus = "COMPLETED"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
