package flow

// Transport stream attribute keys.
const (
	KeyPID            = "ts.pid"
	KeyONID           = "ts.onid"
	KeyProviderName   = "ts.provider_name"
	KeyServiceType    = "ts.service_type"
	KeyRunningStatus  = "ts.running_status"
	KeyScrambled      = "ts.scrambled"
	KeyEIT            = "ts.eit"
	KeyEITSchedule    = "ts.eit_schedule"
	KeySDTDescriptors = "ts.sdt_descriptors"
)

// SetPID sets the transport stream PID carrying the flow.
func (d *Def) SetPID(pid uint16) {
	d.SetUint(KeyPID, uint64(pid))
}

// PID returns the transport stream PID carrying the flow.
func (d *Def) PID() (uint16, error) {
	v, err := d.UintAttr(KeyPID)
	return uint16(v), err
}

// SetONID sets the original network id.
func (d *Def) SetONID(onid uint16) {
	d.SetUint(KeyONID, uint64(onid))
}

// ONID returns the original network id.
func (d *Def) ONID() (uint16, error) {
	v, err := d.UintAttr(KeyONID)
	return uint16(v), err
}

// SetProviderName sets the service provider name.
func (d *Def) SetProviderName(name string) error {
	return d.SetString(KeyProviderName, name)
}

// ProviderName returns the service provider name.
func (d *Def) ProviderName() (string, error) {
	return d.StringAttr(KeyProviderName)
}

// SetServiceType sets the DVB service type.
func (d *Def) SetServiceType(t uint8) {
	d.SetUint(KeyServiceType, uint64(t))
}

// ServiceType returns the DVB service type.
func (d *Def) ServiceType() (uint8, error) {
	v, err := d.UintAttr(KeyServiceType)
	return uint8(v), err
}

// SetRunningStatus sets the DVB running status code.
func (d *Def) SetRunningStatus(status uint8) {
	d.SetUint(KeyRunningStatus, uint64(status))
}

// RunningStatus returns the DVB running status code.
func (d *Def) RunningStatus() (uint8, error) {
	v, err := d.UintAttr(KeyRunningStatus)
	return uint8(v), err
}

// SetScrambled marks the flow as scrambled.
func (d *Def) SetScrambled() {
	d.SetFlag(KeyScrambled)
}

// Scrambled reports whether the flow is scrambled.
func (d *Def) Scrambled() bool {
	return d.Flag(KeyScrambled)
}

// SetEIT marks the flow as having present/following EIT information.
func (d *Def) SetEIT() {
	d.SetFlag(KeyEIT)
}

// EIT reports whether present/following EIT information is signalled.
func (d *Def) EIT() bool {
	return d.Flag(KeyEIT)
}

// SetEITSchedule marks the flow as having EIT schedule information.
func (d *Def) SetEITSchedule() {
	d.SetFlag(KeyEITSchedule)
}

// EITSchedule reports whether EIT schedule information is signalled.
func (d *Def) EITSchedule() bool {
	return d.Flag(KeyEITSchedule)
}

// AddSDTDescriptor appends a raw SDT descriptor, header included.
func (d *Def) AddSDTDescriptor(desc []byte) error {
	return d.AddBlob(KeySDTDescriptors, desc)
}

// SDTDescriptors returns the raw SDT descriptors in insertion order.
func (d *Def) SDTDescriptors() [][]byte {
	return d.Blobs(KeySDTDescriptors)
}
