package transport

import (
	"time"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type UserView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewUserView(u models.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, Role: u.Role}
}

type LoginResponse struct {
	Success   bool      `json:"success"`
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UserResponse struct {
	Success bool     `json:"success"`
	User    UserView `json:"user"`
}

// MessageResponse is also the error envelope, with Success false.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PatientRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	TCID        string `json:"tcId"`
	PhoneNumber string `json:"phoneNumber"`
	Department  string `json:"department"`
	Complaint   string `json:"complaint"`
}

type PatientsResponse struct {
	Success  bool             `json:"success"`
	Patients []models.Patient `json:"patients"`
}

type PatientResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Patient *models.Patient `json:"patient"`
}

type BackupLogsResponse struct {
	Success bool               `json:"success"`
	Logs    []models.BackupLog `json:"logs"`
}

// BackupRunResponse keeps the historical "logs" key for the single new entry.
type BackupRunResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Logs    *models.BackupLog `json:"logs"`
}

type BackupJobResponse struct {
	Success bool              `json:"success"`
	Job     models.BackupJob  `json:"job"`
	Log     *models.BackupLog `json:"log,omitempty"`
}

type LogFileResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}
