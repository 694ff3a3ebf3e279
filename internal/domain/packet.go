package domain

import "time"

// FinanceSnapshot is the end-of-day finance position of the company
type FinanceSnapshot struct {
	AsOf           Date    `json:"as_of"`
	CashOnHandUSD  float64 `json:"cash_on_hand_usd"`
	MonthlyBurnUSD float64 `json:"monthly_burn_usd"`
	RevenueMTDUSD  float64 `json:"revenue_mtd_usd"`
	APUSD          float64 `json:"ap_usd"`
	ARUSD          float64 `json:"ar_usd"`
	Headcount      int     `json:"headcount"`
}

// CompanyStatus summarizes where the scenario arc stands on a date
type CompanyStatus struct {
	AsOf      Date     `json:"as_of"`
	Stage     string   `json:"stage"`
	NextStage string   `json:"next_stage,omitempty"`
	RiskFlags []string `json:"risk_flags"`
}

// MeetingNote is a structured set of meeting minutes
type MeetingNote struct {
	ID              string   `json:"id"`
	When            Date     `json:"when"`
	Title           string   `json:"title"`
	Attendees       []string `json:"attendees"`
	Tags            []string `json:"tags"`
	ContentMarkdown string   `json:"content_markdown"`
}

// Mail is an email visible in the day's inbox
type Mail struct {
	ID       string   `json:"id"`
	SentAt   Date     `json:"sent_at"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	BodyText string   `json:"body_text"`
	ThreadID string   `json:"thread_id,omitempty"`
}

// DirectMessage is a chat message, optionally posted to a channel
type DirectMessage struct {
	ID       string `json:"id"`
	SentAt   Date   `json:"sent_at"`
	From     string `json:"from"`
	To       string `json:"to"`
	BodyText string `json:"body_text"`
	Channel  string `json:"channel,omitempty"`
}

// DayPacket is the denormalized bundle of content for one simulated day
type DayPacket struct {
	ID            string          `json:"id"`
	Date          Date            `json:"date"`
	Meetings      []MeetingNote   `json:"meetings"`
	Emails        []Mail          `json:"emails"`
	Messages      []DirectMessage `json:"messages"`
	CompanyStatus CompanyStatus   `json:"company_status"`
	Finance       FinanceSnapshot `json:"finance"`
	Events        []string        `json:"events,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Employee is a member of the fictional company
type Employee struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Email      string `json:"email" yaml:"email"`
	Role       string `json:"role" yaml:"role"`
	Department string `json:"department" yaml:"department"`
	Site       Site   `json:"site" yaml:"site"`
	ManagerID  string `json:"manager_id,omitempty" yaml:"manager_id,omitempty"`
}
