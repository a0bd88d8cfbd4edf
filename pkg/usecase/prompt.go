package usecase

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPromptTmpl string

var systemPrompt = template.Must(template.New("system").Parse(systemPromptTmpl))

// promptLearned is learned knowledge for template rendering
type promptLearned struct {
	Question string
	Answer   string
}

// promptEpisode is a past conversation for template rendering
type promptEpisode struct {
	Date        string
	SpeakerName string
	UserText    string
	AgentText   string
}

// promptMessage is a working memory item for template rendering
type promptMessage struct {
	Name string
	Text string
}

// systemPromptData holds all data for the system prompt template
type systemPromptData struct {
	Persona      string
	AgentName    string
	Identity     *model.CoreIdentity
	UserName     string
	Relationship model.Relationship
	LastSeen     string
	Facts        []string
	Learned      []promptLearned
	Episodes     []promptEpisode
	History      []promptMessage
	Message      string
	IsPrivate    bool
}

func buildSystemPrompt(persona, agentName string, historyLimit int, cc *model.ConversationContext) (string, error) {
	data := systemPromptData{
		Persona:      persona,
		AgentName:    agentName,
		Identity:     cc.Identity,
		UserName:     cc.User.UserName,
		Relationship: cc.User.Relationship,
		LastSeen:     lastSeen(cc.User.LastInteraction),
		Message:      cc.CurrentMessage,
		IsPrivate:    cc.IsPrivateChannel,
	}
	if data.Identity == nil {
		data.Identity = &model.CoreIdentity{Name: agentName}
	}

	for _, f := range cc.User.KnownFacts {
		data.Facts = append(data.Facts, fmt.Sprintf("%s (%s, confidence %.2f)", f.Content, f.Kind, f.Confidence))
	}

	for _, m := range cc.LearnedMemories() {
		data.Learned = append(data.Learned, promptLearned{Question: m.Question(), Answer: m.AgentText})
	}
	for _, m := range cc.EpisodicMemories() {
		data.Episodes = append(data.Episodes, promptEpisode{
			Date:        m.Timestamp.Format("2006-01-02"),
			SpeakerName: m.SpeakerName,
			UserText:    m.UserText,
			AgentText:   m.AgentText,
		})
	}

	history := cc.WorkingMemory
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, item := range history {
		name := item.SpeakerName
		if item.IsAgentResponse {
			name = agentName
		}
		data.History = append(data.History, promptMessage{Name: name, Text: item.Text})
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute system prompt template")
	}
	return buf.String(), nil
}
