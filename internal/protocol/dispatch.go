package protocol

// Source describes where a dispatched message came from. Conn is zero on the
// client, where everything comes from the server.
type Source struct {
	Conn      ConnID
	Timestamp int64
}

// Handler has one method per message kind. Server and client both implement it;
// adding a kind adds a method here and breaks every consumer until handled.
type Handler interface {
	HandleMove(src Source, m *Move)
	HandleAttack(src Source, m *Attack)
	HandleChat(src Source, m *Chat)
	HandleEffect(src Source, m *Effect)
	HandleAddEntity(src Source, m *AddEntity)
	HandleAddEntityFinish(src Source, m *AddEntityFinish)
	HandleRemoveEntity(src Source, m *RemoveEntity)
	HandleDayNight(src Source, m *DayNight)
	HandleChestAccess(src Source, m *ChestAccess)
	HandleInventoryTransfer(src Source, m *InventoryTransfer)
	HandleItemTransfer(src Source, m *ItemTransfer)
	HandleEquipItem(src Source, m *EquipItem)
	HandleServerSave(src Source, m *ServerSave)
	HandleRightClick(src Source, m *RightClick)
	HandleOnActivate(src Source, m *OnActivate)
	HandlePlayerSetup(src Source, m *PlayerSetup)
	HandlePlayerJoined(src Source, m *PlayerJoined)
	HandlePing(src Source, m *Ping)
	HandleGameWon(src Source, m *GameWon)
	HandlePlayerSpeed(src Source, m *PlayerSpeed)
}

// Payload is sealed: only the kinds in this package implement it.
type Payload interface {
	Kind() Kind
	accept(src Source, h Handler)
}

// Dispatch routes env to the handler method matching its kind.
func Dispatch(conn ConnID, env Envelope, h Handler) {
	if env.Payload == nil {
		return
	}
	env.Payload.accept(Source{Conn: conn, Timestamp: env.Timestamp}, h)
}

func (m *Move) accept(s Source, h Handler)              { h.HandleMove(s, m) }
func (m *Attack) accept(s Source, h Handler)            { h.HandleAttack(s, m) }
func (m *Chat) accept(s Source, h Handler)              { h.HandleChat(s, m) }
func (m *Effect) accept(s Source, h Handler)            { h.HandleEffect(s, m) }
func (m *AddEntity) accept(s Source, h Handler)         { h.HandleAddEntity(s, m) }
func (m *AddEntityFinish) accept(s Source, h Handler)   { h.HandleAddEntityFinish(s, m) }
func (m *RemoveEntity) accept(s Source, h Handler)      { h.HandleRemoveEntity(s, m) }
func (m *DayNight) accept(s Source, h Handler)          { h.HandleDayNight(s, m) }
func (m *ChestAccess) accept(s Source, h Handler)       { h.HandleChestAccess(s, m) }
func (m *InventoryTransfer) accept(s Source, h Handler) { h.HandleInventoryTransfer(s, m) }
func (m *ItemTransfer) accept(s Source, h Handler)      { h.HandleItemTransfer(s, m) }
func (m *EquipItem) accept(s Source, h Handler)         { h.HandleEquipItem(s, m) }
func (m *ServerSave) accept(s Source, h Handler)        { h.HandleServerSave(s, m) }
func (m *RightClick) accept(s Source, h Handler)        { h.HandleRightClick(s, m) }
func (m *OnActivate) accept(s Source, h Handler)        { h.HandleOnActivate(s, m) }
func (m *PlayerSetup) accept(s Source, h Handler)       { h.HandlePlayerSetup(s, m) }
func (m *PlayerJoined) accept(s Source, h Handler)      { h.HandlePlayerJoined(s, m) }
func (m *Ping) accept(s Source, h Handler)              { h.HandlePing(s, m) }
func (m *GameWon) accept(s Source, h Handler)           { h.HandleGameWon(s, m) }
func (m *PlayerSpeed) accept(s Source, h Handler)       { h.HandlePlayerSpeed(s, m) }
