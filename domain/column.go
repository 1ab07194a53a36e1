package domain

// Column is a grouping bucket for cards.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

const (
	ColumnPlans      = "plans"
	ColumnInProgress = "in-progress"
	ColumnDone       = "done"
)

// TodoBoardID is the project id of the shared ToDo board.
const TodoBoardID = "todo"

// ProjectColumns are the fixed columns of a project board.
var ProjectColumns = []Column{
	{ID: ColumnPlans, Title: "Планы"},
	{ID: ColumnInProgress, Title: "В процессе"},
	{ID: ColumnDone, Title: "Сделано"},
}

// TodoColumns are the columns of the ToDo board.
var TodoColumns = []Column{
	{ID: "comfortrade", Title: "ComforTrade"},
	{ID: "dovi", Title: "Dovi"},
	{ID: "zavdannya-ua", Title: "Завдання"},
	{ID: "prochee", Title: "Прочее"},
}

// HasColumn reports whether id names one of cols.
func HasColumn(cols []Column, id string) bool {
	for _, c := range cols {
		if c.ID == id {
			return true
		}
	}
	return false
}

// CardsIn returns the cards of column in array order.
func CardsIn(cards []Card, column string) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.ColumnID == column {
			out = append(out, c)
		}
	}
	return out
}
