package selectstoryui

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const indexURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type selectStoryState int

const (
	loadingStoryList selectStoryState = iota
	choosingStory    selectStoryState = iota
	downloadingStory selectStoryState = iota
)

type story struct {
	name        string
	filename    string
	releaseDate time.Time
	url         string
	description string
	ifdbEntry   string
	ifwiki      string
}

func (s story) Title() string       { return s.name }
func (s story) Description() string { return s.description }
func (s story) FilterValue() string { return s.name + s.description }

// SelectStoryModel lists the version 3 stories on the IF Archive and hands
// the chosen one over to the play screen. The play screen's constructor is
// injected so this package does not depend on the host program.
type SelectStoryModel struct {
	state                  selectStoryState
	storyList              list.Model
	err                    error
	CreateApplicationModel func(storyName string, rom []uint8) (tea.Model, error)
}

func New(createApplicationModel func(storyName string, rom []uint8) (tea.Model, error)) SelectStoryModel {
	storyList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	storyList.Title = "Z-machine stories from the IF Archive"

	return SelectStoryModel{
		state:                  loadingStoryList,
		storyList:              storyList,
		CreateApplicationModel: createApplicationModel,
	}
}

type storiesDownloadedMsg []list.Item

type downloadedStoryMsg struct {
	filename string
	rom      []uint8
}

type errMsg struct{ error }

func (e errMsg) Error() string { return e.error.Error() }

func (m SelectStoryModel) Init() tea.Cmd {
	return downloadStoryList
}

func (m SelectStoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.storyList.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			s, selected := m.storyList.SelectedItem().(story)
			if selected {
				m.state = downloadingStory

				return m, downloadStory(s)
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.storyList.SetSize(msg.Width-h, msg.Height-v)

	case storiesDownloadedMsg:
		m.state = choosingStory
		return m, m.storyList.SetItems([]list.Item(msg))

	case downloadedStoryMsg:
		newModel, err := m.CreateApplicationModel(msg.filename, msg.rom)
		if err != nil {
			m.err = err
			return m, nil
		}
		return newModel, newModel.Init()

	case errMsg:
		m.err = msg
		return m, nil
	}

	var cmd tea.Cmd
	m.storyList, cmd = m.storyList.Update(msg)
	return m, cmd
}

func (m SelectStoryModel) View() string {
	if m.err != nil {
		return docStyle.Render(m.err.Error())
	}
	if m.state == downloadingStory {
		return docStyle.Render("Downloading story...")
	}
	return docStyle.Render(m.storyList.View())
}

func downloadStory(s story) tea.Cmd {
	return func() tea.Msg {
		c := &http.Client{
			Timeout: 60 * time.Second,
		}
		res, err := c.Get(s.url)
		if err != nil {
			return errMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck

		storyBytes, err := io.ReadAll(res.Body)
		if err != nil {
			return errMsg{err}
		}

		// Keep a copy around so the story can be replayed offline with -rom.
		if dir, err := os.UserCacheDir(); err == nil {
			cacheDir := filepath.Join(dir, "gozork")
			if err := os.MkdirAll(cacheDir, 0755); err == nil {
				os.WriteFile(filepath.Join(cacheDir, s.filename), storyBytes, 0644) // nolint:errcheck
			}
		}

		return downloadedStoryMsg{filename: s.filename, rom: storyBytes}
	}
}

func downloadStoryList() tea.Msg {
	c := &http.Client{
		Timeout: 10 * time.Second,
	}
	res, err := c.Get(indexURL)
	if err != nil {
		return errMsg{err}
	}
	defer res.Body.Close() // nolint:errcheck
	if res.StatusCode != 200 {
		return errMsg{fmt.Errorf("story index returned status %d", res.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return errMsg{err}
	}

	var stories []list.Item

	doc.Find("dl dt").Each(func(i int, s *goquery.Selection) {
		title := s.Find("a").Text()
		href, _ := s.Find("a").Attr("href")
		match, _ := regexp.MatchString(`\.z3$`, href)

		if match {
			re := regexp.MustCompile(`\d{2}-\w{3}-\d{4}`)
			rawTimeString := s.Find("span").Text()
			releaseDate, _ := time.Parse("02-Jan-2006", re.FindString(rawTimeString))
			var description string
			var ifdbEntry string
			var ifwiki string

			s.NextUntil("dt").Each(func(j int, s2 *goquery.Selection) {
				if strings.Contains(s2.Text(), "IFDB") {
					ifdbEntry, _ = s2.Find("a").Attr("href")
				} else if strings.Contains(s2.Text(), "IFWiki") {
					ifwiki, _ = s2.Find("a").Attr("href")
				} else if len(s2.ChildrenFiltered("p").Nodes) == 1 {
					description = s2.Find("p").Text()
				}
			})

			stories = append(stories, story{
				name:        title,
				filename:    filepath.Base(href),
				releaseDate: releaseDate,
				url:         "https://www.ifarchive.org" + href,
				description: description,
				ifwiki:      ifwiki,
				ifdbEntry:   ifdbEntry,
			})
		}
	})

	return storiesDownloadedMsg(stories)
}
