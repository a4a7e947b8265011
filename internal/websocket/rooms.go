package websocket

// Rooms groups sessions under a room id. Like the presence registry it is
// owned by the hub loop and never locked.
type Rooms struct {
	members map[string]map[string]*Client
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[string]*Client)}
}

// Join adds c to room. Reports false if it was already a member.
func (r *Rooms) Join(c *Client, room string) bool {
	set, ok := r.members[room]
	if !ok {
		set = make(map[string]*Client)
		r.members[room] = set
	}
	if _, ok := set[c.id]; ok {
		return false
	}
	set[c.id] = c
	c.rooms[room] = struct{}{}
	return true
}

// LeaveAll removes c from every room it joined. Empty rooms are dropped.
func (r *Rooms) LeaveAll(c *Client) {
	for room := range c.rooms {
		if set, ok := r.members[room]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(r.members, room)
			}
		}
		delete(c.rooms, room)
	}
}

func (r *Rooms) Members(room string) []*Client {
	set := r.members[room]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Rooms) Size(room string) int {
	return len(r.members[room])
}

func (r *Rooms) Count() int {
	return len(r.members)
}
