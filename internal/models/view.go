package models

import (
	"encoding/json"
	"fmt"
)

// View is a navigation target of the web app. The set of views is closed:
// only the types in this file implement it.
type View interface {
	ViewType() string
	isView()
}

type LoginView struct{}
type DashboardView struct{}
type RequestFeedbackView struct{}
type SettingsView struct{}

type GiveFeedbackView struct {
	RequestID uint `json:"request_id"`
}

type ViewSummaryView struct {
	UserID  uint   `json:"user_id"`
	Quarter string `json:"quarter"`
}

func (LoginView) ViewType() string           { return "login" }
func (DashboardView) ViewType() string       { return "dashboard" }
func (RequestFeedbackView) ViewType() string { return "request-feedback" }
func (SettingsView) ViewType() string        { return "settings" }
func (GiveFeedbackView) ViewType() string    { return "give-feedback" }
func (ViewSummaryView) ViewType() string     { return "view-summary" }

func (LoginView) isView()           {}
func (DashboardView) isView()       {}
func (RequestFeedbackView) isView() {}
func (SettingsView) isView()        {}
func (GiveFeedbackView) isView()    {}
func (ViewSummaryView) isView()     {}

// MarshalView encodes a view as {"type": ..., <payload fields>}
func MarshalView(v View) ([]byte, error) {
	switch view := v.(type) {
	case GiveFeedbackView:
		return json.Marshal(struct {
			Type string `json:"type"`
			GiveFeedbackView
		}{view.ViewType(), view})
	case ViewSummaryView:
		return json.Marshal(struct {
			Type string `json:"type"`
			ViewSummaryView
		}{view.ViewType(), view})
	case nil:
		return nil, fmt.Errorf("nil view")
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{view.ViewType()})
	}
}

// UnmarshalView decodes the output of MarshalView
func UnmarshalView(data []byte) (View, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case "login":
		return LoginView{}, nil
	case "dashboard":
		return DashboardView{}, nil
	case "request-feedback":
		return RequestFeedbackView{}, nil
	case "settings":
		return SettingsView{}, nil
	case "give-feedback":
		var v GiveFeedbackView
		err := json.Unmarshal(data, &v)
		return v, err
	case "view-summary":
		var v ViewSummaryView
		err := json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown view type %q", head.Type)
	}
}

// NavigationTarget pairs a label with the view it opens, so it can be
// embedded in JSON responses
type NavigationTarget struct {
	Label string
	View  View
}

func (n NavigationTarget) MarshalJSON() ([]byte, error) {
	view, err := MarshalView(n.View)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Label string          `json:"label"`
		View  json.RawMessage `json:"view"`
	}{n.Label, view})
}
